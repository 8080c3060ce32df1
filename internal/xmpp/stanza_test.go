package xmpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOpen(t *testing.T) {
	frames := [][]byte{
		[]byte(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" to="prod.ol.epicgames.com" version="1.0"/>`),
		[]byte(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" to="prod.ol.epicgames.com">`),
	}
	for _, f := range frames {
		st := Decode(f)
		assert.IsType(t, Open{}, st)
	}
}

func TestDecodeAuth(t *testing.T) {
	st := Decode([]byte(`<auth mechanism="PLAIN" xmlns="urn:ietf:params:xml:ns:xmpp-sasl">AGFiYwBkZWY=</auth>`))
	auth, ok := st.(Auth)
	require.True(t, ok)
	assert.Equal(t, "AGFiYwBkZWY=", auth.Payload)
}

func TestDecodeAuthEmptyPayload(t *testing.T) {
	st := Decode([]byte(`<auth mechanism="PLAIN"></auth>`))
	assert.IsType(t, Ignore{}, st)
}

func TestDecodeIQBind(t *testing.T) {
	st := Decode([]byte(`<iq id="_xmpp_bind1" type="set"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><resource>V2:Fortnite:WIN</resource></bind></iq>`))
	iq, ok := st.(IQ)
	require.True(t, ok)
	assert.Equal(t, "set", iq.Type)
	assert.Equal(t, "_xmpp_bind1", iq.ID)
	assert.Equal(t, IQBind, iq.Child)
	assert.Equal(t, "V2:Fortnite:WIN", iq.Resource)
}

func TestDecodeIQBindNoResource(t *testing.T) {
	st := Decode([]byte(`<iq id="b1" type="set"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/></iq>`))
	iq, ok := st.(IQ)
	require.True(t, ok)
	assert.Equal(t, IQBind, iq.Child)
	assert.Empty(t, iq.Resource)
}

func TestDecodeIQSession(t *testing.T) {
	st := Decode([]byte(`<iq id="s1" type="set"><session xmlns="urn:ietf:params:xml:ns:xmpp-session"/></iq>`))
	iq, ok := st.(IQ)
	require.True(t, ok)
	assert.Equal(t, IQSession, iq.Child)
}

func TestDecodeIQGet(t *testing.T) {
	st := Decode([]byte(`<iq id="ping1" type="get"/>`))
	iq, ok := st.(IQ)
	require.True(t, ok)
	assert.Equal(t, "get", iq.Type)
	assert.Equal(t, IQNone, iq.Child)
}

func TestDecodeIQUnknownType(t *testing.T) {
	st := Decode([]byte(`<iq id="x" type="result"/>`))
	assert.IsType(t, Ignore{}, st)
}

func TestDecodePresenceWithTo(t *testing.T) {
	st := Decode([]byte(`<presence to="party1@muc.prod.ol.epicgames.com/alice"/>`))
	p, ok := st.(Presence)
	require.True(t, ok)
	assert.Equal(t, "party1@muc.prod.ol.epicgames.com/alice", p.To)
}

func TestDecodePresenceBroadcast(t *testing.T) {
	st := Decode([]byte(`<presence><status>{}</status></presence>`))
	p, ok := st.(Presence)
	require.True(t, ok)
	assert.Empty(t, p.To)
}

func TestDecodeMessageChat(t *testing.T) {
	st := Decode([]byte(`<message to="u2@prod.ol.epicgames.com" type="chat"><body>hello there</body></message>`))
	m, ok := st.(Message)
	require.True(t, ok)
	assert.Equal(t, "chat", m.Type)
	assert.Equal(t, "hello there", m.Body)
}

func TestDecodeMessageDefaultType(t *testing.T) {
	st := Decode([]byte(`<message to="u2@prod.ol.epicgames.com"><body>hi</body></message>`))
	m, ok := st.(Message)
	require.True(t, ok)
	assert.Equal(t, "chat", m.Type)
}

func TestDecodeMessageGroupchat(t *testing.T) {
	st := Decode([]byte(`<message to="party1@muc.prod.ol.epicgames.com" type="groupchat"><body>squad up</body></message>`))
	m, ok := st.(Message)
	require.True(t, ok)
	assert.Equal(t, "groupchat", m.Type)
	assert.Equal(t, "party1@muc.prod.ol.epicgames.com", m.To)
}

func TestDecodeClose(t *testing.T) {
	st := Decode([]byte(`<close xmlns="urn:ietf:params:xml:ns:xmpp-framing"/>`))
	assert.IsType(t, Close{}, st)
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range [][]byte{
		nil,
		[]byte(""),
		[]byte("not xml at all"),
		[]byte(`<unknown-element/>`),
		[]byte(`</backwards>`),
	} {
		st := Decode(frame)
		assert.IsType(t, Ignore{}, st, "frame %q", frame)
	}
}

func TestDecodeUnknownAttributesPreserved(t *testing.T) {
	// Extra attributes are tolerated, not fatal.
	st := Decode([]byte(`<presence to="party1@muc.x" custom="yes" another="attr"/>`))
	p, ok := st.(Presence)
	require.True(t, ok)
	assert.Equal(t, "party1@muc.x", p.To)
}

func TestOpenResponse(t *testing.T) {
	frame := string(OpenResponse("prod.ol.epicgames.com", "abc123"))
	assert.Contains(t, frame, `xmlns="urn:ietf:params:xml:ns:xmpp-framing"`)
	assert.Contains(t, frame, `from="prod.ol.epicgames.com"`)
	assert.Contains(t, frame, `id="abc123"`)
	assert.Contains(t, frame, `version="1.0"`)
	assert.Contains(t, frame, `xml:lang="en"`)
}

func TestStreamFeatures(t *testing.T) {
	frame := string(StreamFeatures())
	assert.Contains(t, frame, "<mechanism>PLAIN</mechanism>")
	assert.Contains(t, frame, `xmlns:stream="http://etherx.jabber.org/streams"`)
	assert.Contains(t, frame, `<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`)
	assert.Contains(t, frame, "<method>zlib</method>")
	assert.Contains(t, frame, `<session xmlns="urn:ietf:params:xml:ns:xmpp-session"/>`)
	assert.Contains(t, frame, `<starttls xmlns="urn:ietf:params:xml:ns:xmpp-tls"/>`)
}

func TestAuthFrames(t *testing.T) {
	assert.Equal(t, `<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`, string(AuthSuccess()))
	assert.Contains(t, string(AuthFailure()), "<not-authorized/>")
}

func TestIQBindResult(t *testing.T) {
	frame := string(IQBindResult("u1@prod.ol.epicgames.com/res", "b1", "u1@prod.ol.epicgames.com/res"))
	assert.Contains(t, frame, "<jid>u1@prod.ol.epicgames.com/res</jid>")
	assert.Contains(t, frame, `id="b1"`)
	assert.Contains(t, frame, `type="result"`)
}

func TestPresenceFrameOmitsEmptyType(t *testing.T) {
	frame := string(PresenceFrame("party1@muc.x", "u1@x/res", ""))
	assert.NotContains(t, frame, "type=")

	frame = string(PresenceFrame("u2@x/res", "u1@x/res", "available"))
	assert.Contains(t, frame, `type="available"`)
}

func TestMessageFrameEscapesBody(t *testing.T) {
	frame := string(MessageFrame("u1@x/r", "u2@x/r", "chat", `<script>&"</script>`))
	assert.NotContains(t, frame, "<script>")
	assert.Contains(t, frame, "&lt;script&gt;")
}

func TestRoundTripMessage(t *testing.T) {
	frame := MessageFrame("u1@x/r", "u2@x/r", "chat", "hello & goodbye")
	st := Decode(frame)
	m, ok := st.(Message)
	require.True(t, ok)
	assert.Equal(t, "hello & goodbye", m.Body)
}
