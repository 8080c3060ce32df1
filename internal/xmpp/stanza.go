// Package xmpp implements the constrained stanza codec used by the
// presence gateway: a closed set of recognized inbound frame variants and
// builders for the server-originated frames. The codec is stateless;
// anything malformed or unrecognized decodes to Ignore so the caller can
// drop it without tearing down the connection.
package xmpp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Namespaces observed on the wire.
const (
	NamespaceFraming   = "urn:ietf:params:xml:ns:xmpp-framing"
	NamespaceSASL      = "urn:ietf:params:xml:ns:xmpp-sasl"
	NamespaceBind      = "urn:ietf:params:xml:ns:xmpp-bind"
	NamespaceSession   = "urn:ietf:params:xml:ns:xmpp-session"
	NamespaceStreams   = "http://etherx.jabber.org/streams"
	NamespaceTLS       = "urn:ietf:params:xml:ns:xmpp-tls"
	NamespaceCompress  = "http://jabber.org/features/compress"
	NamespaceRosterVer = "urn:xmpp:features:rosterver"
)

// Stanza is one decoded inbound frame. Exactly one of the concrete types
// below is returned per frame.
type Stanza interface{ isStanza() }

// Open is the framed-stream open request.
type Open struct{}

// Auth carries the SASL PLAIN payload (base64 of a NUL-joined triple).
type Auth struct {
	Payload string
}

// IQChild identifies the recognized child element of an iq set.
type IQChild int

const (
	// IQNone means no recognized child element was present.
	IQNone IQChild = iota
	// IQBind is the resource-binding request child.
	IQBind
	// IQSession is the session-establishment request child.
	IQSession
)

// IQ is an info/query frame of type "get" or "set".
type IQ struct {
	Type  string
	ID    string
	Child IQChild
	// Resource is the client-supplied resource label from a bind
	// child, empty when absent.
	Resource string
}

// Presence is a presence update; To is empty for a broadcast to friends
// and holds a room address for a room join.
type Presence struct {
	To string
}

// Message is a chat or groupchat message with its body text.
type Message struct {
	To   string
	Type string
	Body string
}

// Close is the framed-stream close request.
type Close struct{}

// Ignore is returned for malformed or unrecognized frames; callers must
// silently drop it.
type Ignore struct{}

func (Open) isStanza()     {}
func (Auth) isStanza()     {}
func (IQ) isStanza()       {}
func (Presence) isStanza() {}
func (Message) isStanza()  {}
func (Close) isStanza()    {}
func (Ignore) isStanza()   {}

// element is a minimal parsed XML tree node. Unrecognized attributes are
// preserved here but unused by the decode mapping.
type element struct {
	name     string
	attrs    map[string]string
	children []*element
	text     string
}

func (e *element) attr(name string) string {
	return e.attrs[name]
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseFrame reads one root element from the frame. Returns nil on any
// syntax error or when the frame holds no element.
func parseFrame(frame []byte) *element {
	dec := xml.NewDecoder(bytes.NewReader(frame))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		if start, ok := tok.(xml.StartElement); ok {
			root, err := parseElement(dec, start)
			if err != nil {
				return nil
			}
			return root
		}
	}
}

func parseElement(dec *xml.Decoder, start xml.StartElement) (*element, error) {
	el := &element{
		name:  start.Name.Local,
		attrs: make(map[string]string, len(start.Attr)),
	}
	for _, a := range start.Attr {
		el.attrs[a.Name.Local] = a.Value
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			// Some clients send the framed <open> unterminated;
			// accept whatever was parsed up to end of input.
			var syntaxErr *xml.SyntaxError
			if err == io.EOF || (errors.As(err, &syntaxErr) && strings.Contains(syntaxErr.Msg, "EOF")) {
				return el, nil
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			el.children = append(el.children, child)
		case xml.CharData:
			el.text += string(t)
		case xml.EndElement:
			return el, nil
		}
	}
}

// Decode parses one inbound frame into its stanza variant.
//
// Postcondition: Never returns nil; malformed or unrecognized input maps
// to Ignore.
func Decode(frame []byte) Stanza {
	root := parseFrame(frame)
	if root == nil {
		return Ignore{}
	}

	switch root.name {
	case "open":
		return Open{}
	case "auth":
		if root.text == "" {
			return Ignore{}
		}
		return Auth{Payload: root.text}
	case "iq":
		return decodeIQ(root)
	case "presence":
		return Presence{To: root.attr("to")}
	case "message":
		return decodeMessage(root)
	case "close":
		return Close{}
	default:
		return Ignore{}
	}
}

func decodeIQ(root *element) Stanza {
	iqType := root.attr("type")
	if iqType != "get" && iqType != "set" {
		return Ignore{}
	}

	iq := IQ{Type: iqType, ID: root.attr("id")}
	if bind := root.child("bind"); bind != nil {
		iq.Child = IQBind
		if res := bind.child("resource"); res != nil {
			iq.Resource = res.text
		}
	} else if root.child("session") != nil {
		iq.Child = IQSession
	}
	return iq
}

func decodeMessage(root *element) Stanza {
	msgType := root.attr("type")
	if msgType == "" {
		msgType = "chat"
	}
	msg := Message{To: root.attr("to"), Type: msgType}
	if body := root.child("body"); body != nil {
		msg.Body = body.text
	}
	return msg
}
