package codec

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// BindDN returns the bind name carried by a bindRequest, if m is one.
func (m *Message) BindDN() (string, bool) {
	if m.Op != OpBindRequest || len(m.Raw.Children) < 2 {
		return "", false
	}
	op := m.Raw.Children[1]
	if len(op.Children) < 2 {
		return "", false
	}
	dn, ok := op.Children[1].Value.(string)
	return dn, ok
}

// SetBindDN rewrites the bind name of a bindRequest in place.
func (m *Message) SetBindDN(dn string) error {
	if m.Op != OpBindRequest || len(m.Raw.Children) < 2 {
		return fmt.Errorf("codec: SetBindDN: not a bindRequest")
	}
	op := m.Raw.Children[1]
	if len(op.Children) < 2 {
		return fmt.Errorf("codec: SetBindDN: malformed bind request")
	}
	op.Children[1] = ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, dn, "name")
	return nil
}

// EntryDN returns the objectName of a searchResEntry, if m is one.
func (m *Message) EntryDN() (string, bool) {
	if m.Op != OpSearchResEntry || len(m.Raw.Children) < 2 {
		return "", false
	}
	op := m.Raw.Children[1]
	if len(op.Children) < 1 {
		return "", false
	}
	dn, ok := op.Children[0].Value.(string)
	return dn, ok
}

// EntryAttributes returns the PartialAttributeList of a searchResEntry.
func (m *Message) EntryAttributes() []EntryAttr {
	if m.Op != OpSearchResEntry || len(m.Raw.Children) < 2 {
		return nil
	}
	op := m.Raw.Children[1]
	if len(op.Children) < 2 {
		return nil
	}
	var out []EntryAttr
	for _, pa := range op.Children[1].Children {
		if len(pa.Children) < 2 {
			continue
		}
		name, _ := pa.Children[0].Value.(string)
		var vals []string
		for _, v := range pa.Children[1].Children {
			if s, ok := v.Value.(string); ok {
				vals = append(vals, s)
			}
		}
		out = append(out, EntryAttr{Type: name, Values: vals})
	}
	return out
}

// AppendAttribute appends one new PartialAttribute to a searchResEntry.
func (m *Message) AppendAttribute(name string, values []string) error {
	if m.Op != OpSearchResEntry || len(m.Raw.Children) < 2 {
		return fmt.Errorf("codec: AppendAttribute: not a searchResEntry")
	}
	op := m.Raw.Children[1]
	if len(op.Children) < 2 {
		return fmt.Errorf("codec: AppendAttribute: malformed entry")
	}
	op.Children[1].AppendChild(encodePartialAttribute(name, values))
	return nil
}

// ReplaceAttribute overwrites the value set of an existing PartialAttribute
// matched by name. It returns an error if the entry carries no such
// attribute, since callers only ever call it after reading that attribute
// back from EntryAttributes.
func (m *Message) ReplaceAttribute(name string, values []string) error {
	if m.Op != OpSearchResEntry || len(m.Raw.Children) < 2 {
		return fmt.Errorf("codec: ReplaceAttribute: not a searchResEntry")
	}
	op := m.Raw.Children[1]
	if len(op.Children) < 2 {
		return fmt.Errorf("codec: ReplaceAttribute: malformed entry")
	}
	for _, pa := range op.Children[1].Children {
		if len(pa.Children) < 2 {
			continue
		}
		if n, ok := pa.Children[0].Value.(string); ok && n == name {
			pa.Children[1] = encodeValueSet(values)
			return nil
		}
	}
	return fmt.Errorf("codec: ReplaceAttribute: attribute %q not present", name)
}

func encodePartialAttribute(name string, values []string) *ber.Packet {
	attr := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "PartialAttribute")
	attr.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, name, "type"))
	attr.AppendChild(encodeValueSet(values))
	return attr
}

func encodeValueSet(values []string) *ber.Packet {
	set := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")
	for _, v := range values {
		set.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "value"))
	}
	return set
}
