// Package matchmaker implements the scripted matchmaking-ticket handshake.
// Each connection runs a fixed single-participant negotiation: a sequence
// of status updates with timed suspensions between phases, ending in a
// session assignment. No shared state is touched, so any number of
// matchmaking connections proceed independently.
package matchmaker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/riftgate/server/internal/config"
)

// Conn is the transport surface the matchmaker drives.
type Conn interface {
	ReadFrame() ([]byte, error)
	Send(frame []byte) error
	Close()
}

// Phase is one step of the ticket sequence. Phases strictly advance and
// never repeat.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseWaiting
	PhaseQueued
	PhaseSessionAssignment
	PhasePlay
)

// Ticket holds the identifiers generated for one matchmaking handshake.
type Ticket struct {
	TicketID  string
	MatchID   string
	SessionID string
	Phase     Phase
}

// newTicket generates three unrelated identifiers, hyphens stripped.
func newTicket() *Ticket {
	return &Ticket{
		TicketID:  rawID(),
		MatchID:   rawID(),
		SessionID: rawID(),
	}
}

func rawID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// envelope is the wire framing for every matchmaker message.
type envelope struct {
	Payload any    `json:"payload"`
	Name    string `json:"name"`
}

// Typed payloads per phase.

type connectingStatus struct {
	State string `json:"state"`
}

type waitingStatus struct {
	TotalPlayers     int    `json:"totalPlayers"`
	ConnectedPlayers int    `json:"connectedPlayers"`
	State            string `json:"state"`
}

type queuedStatus struct {
	TicketID         string         `json:"ticketId"`
	QueuedPlayers    int            `json:"queuedPlayers"`
	EstimatedWaitSec int            `json:"estimatedWaitSec"`
	Status           map[string]any `json:"status"`
	State            string         `json:"state"`
}

type assignmentStatus struct {
	MatchID string `json:"matchId"`
	State   string `json:"state"`
}

type playPayload struct {
	MatchID      string `json:"matchId"`
	SessionID    string `json:"sessionId"`
	JoinDelaySec int    `json:"joinDelaySec"`
}

// Handler runs the scripted ticket sequence for matchmaking connections.
// The clock is injected so tests advance phases without wall-clock waits.
type Handler struct {
	cfg    config.MatchmakerConfig
	clock  clock.Clock
	logger *zap.Logger
}

// NewHandler creates a matchmaker Handler using the real clock.
//
// Precondition: logger must be non-nil.
func NewHandler(cfg config.MatchmakerConfig, logger *zap.Logger) *Handler {
	return NewHandlerWithClock(cfg, clock.New(), logger)
}

// NewHandlerWithClock creates a Handler with an explicit clock.
func NewHandlerWithClock(cfg config.MatchmakerConfig, clk clock.Clock, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, clock: clk, logger: logger}
}

// HandleSession runs the full ticket sequence on the connection. It
// returns when the terminal Play message is sent, the peer disappears, or
// ctx is cancelled. Send failures abort the remaining phases; nothing
// propagates past this connection.
//
// Postcondition: The ticket phases were emitted strictly in order, with
// no phase repeated or skipped before the abort point.
func (h *Handler) HandleSession(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The client sends nothing meaningful; drain reads to notice a
	// peer-initiated close promptly.
	go func() {
		for {
			if _, err := conn.ReadFrame(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticket := newTicket()
	h.logger.Info("matchmaking connection",
		zap.String("ticket_id", ticket.TicketID),
	)

	steps := []struct {
		phase Phase
		env   envelope
		delay time.Duration
	}{
		{PhaseConnecting, statusUpdate(connectingStatus{State: "Connecting"}), h.cfg.ConnectingDelay},
		{PhaseWaiting, statusUpdate(waitingStatus{TotalPlayers: 1, ConnectedPlayers: 1, State: "Waiting"}), h.cfg.WaitingDelay},
		{PhaseQueued, statusUpdate(queuedStatus{TicketID: ticket.TicketID, Status: map[string]any{}, State: "Queued"}), h.cfg.QueuedDelay},
		{PhaseSessionAssignment, statusUpdate(assignmentStatus{MatchID: ticket.MatchID, State: "SessionAssignment"}), h.cfg.AssignmentDelay},
		{PhasePlay, envelope{Name: "Play", Payload: playPayload{
			MatchID:      ticket.MatchID,
			SessionID:    ticket.SessionID,
			JoinDelaySec: h.cfg.JoinDelaySec,
		}}, 0},
	}

	for _, step := range steps {
		ticket.Phase = step.phase
		if err := h.emit(conn, step.env); err != nil {
			h.logger.Debug("matchmaking aborted",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int("phase", int(step.phase)),
				zap.Error(err),
			)
			return
		}
		if step.delay > 0 && !h.suspend(ctx, step.delay) {
			return
		}
	}

	h.logger.Info("session assigned",
		zap.String("session_id", ticket.SessionID),
		zap.String("match_id", ticket.MatchID),
	)
}

func statusUpdate(payload any) envelope {
	return envelope{Name: "StatusUpdate", Payload: payload}
}

func (h *Handler) emit(conn Conn, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// suspend waits out one phase delay. Returns false when ctx was cancelled
// first.
func (h *Handler) suspend(ctx context.Context, d time.Duration) bool {
	timer := h.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
