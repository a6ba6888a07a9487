package codec

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Operation identifies the LDAP protocol operation carried by a Message.
type Operation int

const (
	OpUnknown Operation = iota
	OpBindRequest
	OpBindResponse
	OpUnbindRequest
	OpSearchRequest
	OpSearchResEntry
	OpSearchResDone
	OpSearchResRef
	OpExtendedRequest
	OpGenericResponse
)

// Application-class protocol op tags, RFC 4511 §4.2 and 4.5.
const (
	tagBindRequest      ber.Tag = 0
	tagBindResponse     ber.Tag = 1
	tagUnbindRequest    ber.Tag = 2
	tagSearchRequest    ber.Tag = 3
	tagSearchResEntry   ber.Tag = 4
	tagSearchResDone    ber.Tag = 5
	tagSearchResRef     ber.Tag = 19
	tagExtendedRequest  ber.Tag = 23
	tagExtendedResponse ber.Tag = 24
)

// StartTLSOID is the LDAP extended operation OID that upgrades a plain
// connection to TLS. The proxy never negotiates it; see Message.StartTLS.
const StartTLSOID = "1.3.6.1.4.1.1466.20037"

// SearchParams is the canonical field set of a decoded searchRequest,
// sufficient to compute a cache fingerprint without re-walking the packet
// tree.
type SearchParams struct {
	BaseDN       string
	Scope        int64
	DerefAliases int64
	SizeLimit    int64
	TimeLimit    int64
	TypesOnly    bool
	FilterBytes  []byte
	Attributes   []string
}

// EntryAttr is one PartialAttribute of a searchResEntry: a type name and
// its (possibly multi-valued) values.
type EntryAttr struct {
	Type   string
	Values []string
}

// Message is a decoded LDAP PDU: the message ID, the operation kind, and
// the raw packet tree that both carries the mutable state filters act on
// and re-encodes back to wire bytes.
type Message struct {
	Raw       *ber.Packet
	MessageID int64
	Op        Operation
	Search    *SearchParams
	StartTLS  bool
}

// Decode parses a single BER frame (as produced by ReadFrame) into a
// Message. It is the shared implementation behind DecodeRequest and
// DecodeResponse, which exist as separate names per the Frame Codec
// contract even though client and server frames share one decode path.
func Decode(frame []byte) (*Message, error) {
	packet := ber.DecodePacket(frame)
	if packet == nil || len(packet.Children) < 2 {
		return nil, ErrMalformed
	}

	messageID, ok := packet.Children[0].Value.(int64)
	if !ok {
		return nil, ErrMalformed
	}

	opPacket := packet.Children[1]
	m := &Message{
		Raw:       packet,
		MessageID: messageID,
		Op:        operationFromTag(opPacket),
	}

	switch m.Op {
	case OpSearchRequest:
		sp, err := decodeSearchParams(opPacket)
		if err != nil {
			return nil, err
		}
		m.Search = sp
	case OpExtendedRequest:
		m.StartTLS = isStartTLS(opPacket)
	}

	return m, nil
}

// DecodeRequest decodes a frame received from a client.
func DecodeRequest(frame []byte) (*Message, error) { return Decode(frame) }

// DecodeResponse decodes a frame received from the upstream server.
func DecodeResponse(frame []byte) (*Message, error) { return Decode(frame) }

// Encode re-serializes m to wire bytes. For a Message that no filter has
// touched this reproduces the original frame byte-for-byte (the round-trip
// law): the packet tree built by DecodePacket retains every child and raw
// value, and Bytes() recomputes only the lengths, which are already
// minimal-form in any conforming encoder's output.
func Encode(m *Message) []byte {
	return m.Raw.Bytes()
}

// Clone returns an independent copy of m, obtained by re-encoding and
// re-decoding, so that mutating the copy (for example rewriting its
// message ID) never mutates the original.
func (m *Message) Clone() *Message {
	clone, err := Decode(Encode(m))
	if err != nil {
		// Encode always emits a frame that Decode just parsed once already;
		// a failure here means the library's own round-trip guarantee broke.
		panic(fmt.Sprintf("codec: clone: %v", err))
	}
	return clone
}

// SetMessageID rewrites m's message ID, both in the decoded field and in
// the packet tree so Encode reflects it. Filters are never handed this
// method (see filter.Request/filter.Entry); only cache replay calls it.
func (m *Message) SetMessageID(id int64) {
	m.MessageID = id
	m.Raw.Children[0] = ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "messageID")
}

func operationFromTag(p *ber.Packet) Operation {
	if p.ClassType != ber.ClassApplication {
		return OpUnknown
	}
	switch p.Tag {
	case tagBindRequest:
		return OpBindRequest
	case tagBindResponse:
		return OpBindResponse
	case tagUnbindRequest:
		return OpUnbindRequest
	case tagSearchRequest:
		return OpSearchRequest
	case tagSearchResEntry:
		return OpSearchResEntry
	case tagSearchResDone:
		return OpSearchResDone
	case tagSearchResRef:
		return OpSearchResRef
	case tagExtendedRequest:
		return OpExtendedRequest
	default:
		return OpGenericResponse
	}
}

func decodeSearchParams(p *ber.Packet) (*SearchParams, error) {
	if len(p.Children) < 8 {
		return nil, ErrMalformed
	}
	baseDN, _ := p.Children[0].Value.(string)
	scope, _ := p.Children[1].Value.(int64)
	deref, _ := p.Children[2].Value.(int64)
	sizeLimit, _ := p.Children[3].Value.(int64)
	timeLimit, _ := p.Children[4].Value.(int64)
	typesOnly, _ := p.Children[5].Value.(bool)

	var attrs []string
	for _, c := range p.Children[7].Children {
		if s, ok := c.Value.(string); ok {
			attrs = append(attrs, s)
		}
	}

	return &SearchParams{
		BaseDN:       baseDN,
		Scope:        scope,
		DerefAliases: deref,
		SizeLimit:    sizeLimit,
		TimeLimit:    timeLimit,
		TypesOnly:    typesOnly,
		FilterBytes:  p.Children[6].Bytes(),
		Attributes:   attrs,
	}, nil
}

func isStartTLS(p *ber.Packet) bool {
	for _, c := range p.Children {
		if c.ClassType == ber.ClassContext && c.Tag == 0 {
			// Context-class primitives aren't decoded into .Value by
			// DecodePacket; the requestName octets live in .Data.
			return string(c.Data.Bytes()) == StartTLSOID
		}
	}
	return false
}
