package presence

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/riftgate/server/internal/auth"
	"github.com/riftgate/server/internal/xmpp"
)

// ErrAccountNotFound is the sentinel returned by AccountGateway.FindAccount
// for an unknown account id.
var ErrAccountNotFound = errors.New("account not found")

// Account is the slice of account state the handler consumes.
type Account struct {
	DisplayName string
	Banned      bool
}

// AccountGateway resolves an authenticated identity to its account record.
type AccountGateway interface {
	FindAccount(ctx context.Context, accountID string) (Account, error)
}

// RelationGateway lists the account ids with an ACCEPTED relation to the
// given account. PENDING relations never appear in the result.
type RelationGateway interface {
	ListAcceptedRelations(ctx context.Context, accountID string) ([]string, error)
}

// TokenVerifier validates a bearer credential.
type TokenVerifier interface {
	Verify(token string) auth.Verification
}

// Handler drives the stanza session state machine for presence
// connections. One Handler serves all connections; per-connection state
// lives in the session struct threaded through each dispatch.
type Handler struct {
	domain    string
	verifier  TokenVerifier
	accounts  AccountGateway
	relations RelationGateway
	registry  *Registry
	logger    *zap.Logger
}

// NewHandler creates a presence Handler.
//
// Precondition: all arguments must be non-nil; domain must be non-empty.
func NewHandler(domain string, verifier TokenVerifier, accounts AccountGateway, relations RelationGateway, registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{
		domain:    domain,
		verifier:  verifier,
		accounts:  accounts,
		relations: relations,
		registry:  registry,
		logger:    logger,
	}
}

// sessionState is the per-connection handshake state. It replaces the
// original's connection-scoped free variables with an explicit struct.
type sessionState struct {
	conn          Conn
	streamID      string
	accountID     string
	displayName   string
	authenticated bool
	// session is non-nil once the connection is bound and registered.
	session *Session
}

// HandleSession processes one presence connection until it closes,
// dispatching inbound stanzas strictly in arrival order, then tears down
// any registered session.
//
// Postcondition: The connection is closed and its session (if any) is
// unregistered with its room memberships pruned.
func (h *Handler) HandleSession(ctx context.Context, conn Conn) {
	state := &sessionState{conn: conn}
	defer h.teardown(ctx, state)
	defer conn.Close()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		if !h.dispatch(ctx, state, xmpp.Decode(frame)) {
			return
		}
	}
}

// dispatch handles one decoded stanza. Returns false when the connection
// must stop processing.
func (h *Handler) dispatch(ctx context.Context, state *sessionState, st xmpp.Stanza) bool {
	switch s := st.(type) {
	case xmpp.Open:
		return h.handleOpen(state)
	case xmpp.Auth:
		return h.handleAuth(ctx, state, s)
	case xmpp.IQ:
		return h.handleIQ(state, s)
	case xmpp.Presence:
		return h.handlePresence(ctx, state, s)
	case xmpp.Message:
		return h.handleMessage(state, s)
	case xmpp.Close:
		state.conn.Close()
		return false
	default:
		// Malformed or unrecognized frames keep the connection alive.
		return true
	}
}

// handleOpen acknowledges the stream open and advertises features. A
// repeated open before auth reuses the assigned stream id.
func (h *Handler) handleOpen(state *sessionState) bool {
	if state.streamID == "" {
		state.streamID = uuid.NewString()
	}
	if err := state.conn.Send(xmpp.OpenResponse(h.domain, state.streamID)); err != nil {
		return false
	}
	return state.conn.Send(xmpp.StreamFeatures()) == nil
}

// handleAuth verifies the SASL PLAIN payload's bearer token and resolves
// the account. Every failure mode emits the same failure frame and closes
// the connection.
func (h *Handler) handleAuth(ctx context.Context, state *sessionState, s xmpp.Auth) bool {
	token, ok := bearerFromPayload(s.Payload)
	if !ok {
		return h.authFailure(state, "malformed auth payload")
	}

	result := h.verifier.Verify(token)
	if !result.Valid {
		return h.authFailure(state, string(result.Reason))
	}

	account, err := h.accounts.FindAccount(ctx, result.AccountID)
	if err != nil {
		return h.authFailure(state, "account lookup failed")
	}
	if account.Banned {
		return h.authFailure(state, "account banned")
	}

	state.accountID = result.AccountID
	state.displayName = account.DisplayName
	state.authenticated = true

	return state.conn.Send(xmpp.AuthSuccess()) == nil
}

func (h *Handler) authFailure(state *sessionState, reason string) bool {
	h.logger.Debug("authentication failed", zap.String("reason", reason))
	_ = state.conn.Send(xmpp.AuthFailure())
	state.conn.Close()
	return false
}

// bearerFromPayload extracts the token from the base64 NUL-joined
// authzid/authcid/token triple.
func bearerFromPayload(payload string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	parts := strings.Split(string(decoded), "\x00")
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func (h *Handler) handleIQ(state *sessionState, s xmpp.IQ) bool {
	jid := ""
	if state.session != nil {
		jid = state.session.JID
	}

	// A get is a keep-alive echo, answered any time after stream open.
	if s.Type == "get" {
		if state.streamID == "" {
			return true
		}
		return state.conn.Send(xmpp.IQResult(jid, h.domain, s.ID)) == nil
	}

	if !state.authenticated {
		return true
	}

	switch s.Child {
	case xmpp.IQBind:
		return h.handleBind(state, s)
	case xmpp.IQSession:
		return state.conn.Send(xmpp.IQResult(jid, h.domain, s.ID)) == nil
	default:
		return true
	}
}

// handleBind assigns the resource, registers the session (evicting any
// previous session for the account), and replies with the bound jid. This
// is the only place session registry membership changes for a connect.
func (h *Handler) handleBind(state *sessionState, s xmpp.IQ) bool {
	resource := s.Resource
	if resource == "" {
		resource = uuid.NewString()
	}
	jid := state.accountID + "@" + h.domain + "/" + resource

	sess := &Session{
		AccountID:   state.accountID,
		DisplayName: state.displayName,
		JID:         jid,
		Resource:    resource,
		Conn:        state.conn,
	}
	h.registry.Register(sess)
	state.session = sess

	h.logger.Info("client bound",
		zap.String("display_name", state.displayName),
		zap.String("account_id", state.accountID),
		zap.String("jid", jid),
	)

	return state.conn.Send(xmpp.IQBindResult(jid, s.ID, jid)) == nil
}

func (h *Handler) handlePresence(ctx context.Context, state *sessionState, s xmpp.Presence) bool {
	if state.session == nil {
		return true
	}

	if s.To != "" {
		h.joinRoom(state.session, s.To)
	} else {
		h.broadcastToFriends(ctx, state.session, "available")
	}
	return true
}

// joinRoom adds the session to the addressed room and fans the join
// presence out to every member, the joiner included. Members whose
// connection is gone are skipped.
func (h *Handler) joinRoom(sess *Session, roomAddr string) {
	roomID := localPart(roomAddr)
	members := h.registry.JoinRoom(roomID, sess, roomAddr)

	for _, m := range members {
		_ = m.Conn.Send(xmpp.PresenceFrame(roomAddr, m.JID, ""))
	}
}

// broadcastToFriends relays a presence update to the registered
// connection of every ACCEPTED relation. Offline friends are skipped.
func (h *Handler) broadcastToFriends(ctx context.Context, sess *Session, presenceType string) {
	friends, err := h.relations.ListAcceptedRelations(ctx, sess.AccountID)
	if err != nil {
		h.logger.Warn("listing relations",
			zap.String("account_id", sess.AccountID),
			zap.Error(err),
		)
		return
	}

	for _, friendID := range friends {
		friend, ok := h.registry.Lookup(friendID)
		if !ok {
			continue
		}
		_ = friend.Conn.Send(xmpp.PresenceFrame(sess.JID, friend.JID, presenceType))
	}
}

func (h *Handler) handleMessage(state *sessionState, s xmpp.Message) bool {
	if state.session == nil || s.Body == "" {
		return true
	}

	switch s.Type {
	case "chat":
		target, ok := h.registry.Lookup(localPart(s.To))
		if !ok {
			// Fire and forget: no receipt, no error to the sender.
			return true
		}
		_ = target.Conn.Send(xmpp.MessageFrame(state.session.JID, target.JID, "chat", s.Body))
	case "groupchat":
		members, ok := h.registry.RoomMembers(localPart(s.To))
		if !ok {
			return true
		}
		for _, m := range members {
			if m.AccountID == state.session.AccountID {
				continue
			}
			_ = m.Conn.Send(xmpp.MessageFrame(s.To, m.JID, "groupchat", s.Body))
		}
	}
	return true
}

// teardown unregisters the session and relays unavailable presence to
// friends. Runs exactly once per connection; all registry operations are
// defensive no-ops when already unregistered.
func (h *Handler) teardown(ctx context.Context, state *sessionState) {
	if state.session == nil {
		return
	}

	h.registry.Remove(state.session)
	h.broadcastToFriends(ctx, state.session, "unavailable")

	h.logger.Info("client disconnected",
		zap.String("display_name", state.session.DisplayName),
		zap.String("account_id", state.session.AccountID),
	)
}

// localPart returns the account or room id portion of a jid-like address.
func localPart(addr string) string {
	if i := strings.Index(addr, "@"); i >= 0 {
		return addr[:i]
	}
	return addr
}
