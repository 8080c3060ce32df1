package xmpp

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// frameBuilder assembles one outbound frame. Attribute values and text
// content are XML-escaped; element names are fixed strings.
type frameBuilder struct {
	buf bytes.Buffer
}

func (b *frameBuilder) open(name string, attrs ...[2]string) *frameBuilder {
	b.buf.WriteByte('<')
	b.buf.WriteString(name)
	for _, a := range attrs {
		if a[1] == "" {
			continue
		}
		fmt.Fprintf(&b.buf, ` %s="%s"`, a[0], escape(a[1]))
	}
	b.buf.WriteByte('>')
	return b
}

func (b *frameBuilder) selfClose(name string, attrs ...[2]string) *frameBuilder {
	b.buf.WriteByte('<')
	b.buf.WriteString(name)
	for _, a := range attrs {
		fmt.Fprintf(&b.buf, ` %s="%s"`, a[0], escape(a[1]))
	}
	b.buf.WriteString("/>")
	return b
}

func (b *frameBuilder) text(s string) *frameBuilder {
	b.buf.WriteString(escape(s))
	return b
}

func (b *frameBuilder) close(name string) *frameBuilder {
	b.buf.WriteString("</")
	b.buf.WriteString(name)
	b.buf.WriteByte('>')
	return b
}

func (b *frameBuilder) bytes() []byte {
	return b.buf.Bytes()
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func attr(name, value string) [2]string { return [2]string{name, value} }

// OpenResponse builds the server's open acknowledgment carrying the
// assigned stream id.
func OpenResponse(domain, streamID string) []byte {
	var b frameBuilder
	b.open("open",
		attr("xmlns", NamespaceFraming),
		attr("from", domain),
		attr("id", streamID),
		attr("version", "1.0"),
		attr("xml:lang", "en"),
	)
	return b.bytes()
}

// StreamFeatures builds the features frame advertising PLAIN auth,
// resource binding, and session establishment.
func StreamFeatures() []byte {
	var b frameBuilder
	b.open("stream:features", attr("xmlns:stream", NamespaceStreams))
	b.open("mechanisms", attr("xmlns", NamespaceSASL))
	b.open("mechanism").text("PLAIN").close("mechanism")
	b.close("mechanisms")
	b.selfClose("ver", attr("xmlns", NamespaceRosterVer))
	b.selfClose("starttls", attr("xmlns", NamespaceTLS))
	b.selfClose("bind", attr("xmlns", NamespaceBind))
	b.open("compression", attr("xmlns", NamespaceCompress))
	b.open("method").text("zlib").close("method")
	b.close("compression")
	b.selfClose("session", attr("xmlns", NamespaceSession))
	b.close("stream:features")
	return b.bytes()
}

// AuthSuccess builds the SASL success frame.
func AuthSuccess() []byte {
	var b frameBuilder
	b.selfClose("success", attr("xmlns", NamespaceSASL))
	return b.bytes()
}

// AuthFailure builds the SASL failure frame with its not-authorized
// condition. Every auth failure looks identical on the wire.
func AuthFailure() []byte {
	var b frameBuilder
	b.open("failure", attr("xmlns", NamespaceSASL))
	b.selfClose("not-authorized")
	b.close("failure")
	return b.bytes()
}

// IQResult builds an empty iq result frame.
func IQResult(to, from, id string) []byte {
	var b frameBuilder
	b.open("iq",
		attr("to", to),
		attr("from", from),
		attr("id", id),
		attr("type", "result"),
	)
	b.close("iq")
	return b.bytes()
}

// IQBindResult builds the iq result that carries the bound jid.
func IQBindResult(to, id, jid string) []byte {
	var b frameBuilder
	b.open("iq",
		attr("to", to),
		attr("id", id),
		attr("type", "result"),
	)
	b.open("bind", attr("xmlns", NamespaceBind))
	b.open("jid").text(jid).close("jid")
	b.close("bind")
	b.close("iq")
	return b.bytes()
}

// PresenceFrame builds a presence frame. presenceType may be empty (room
// join broadcasts carry none), "available", or "unavailable".
func PresenceFrame(from, to, presenceType string) []byte {
	var b frameBuilder
	b.open("presence",
		attr("from", from),
		attr("to", to),
		attr("type", presenceType),
	)
	b.close("presence")
	return b.bytes()
}

// MessageFrame builds a chat or groupchat message frame with the body
// delivered verbatim (escaped for transport only).
func MessageFrame(from, to, messageType, body string) []byte {
	var b frameBuilder
	b.open("message",
		attr("from", from),
		attr("to", to),
		attr("type", messageType),
	)
	b.open("body").text(body).close("body")
	b.close("message")
	return b.bytes()
}
