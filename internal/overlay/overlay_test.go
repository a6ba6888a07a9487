package overlay

import (
	"os"
	"path/filepath"
	"testing"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestSanitize_StripsUnsafeCharacters(t *testing.T) {
	require.Equal(t, "cn_alice_corp_example", Sanitize("cn=alice@corp.example"))
}

func TestSanitize_TruncatesTo64(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	got := Sanitize(long)
	require.Len(t, got, 64)
}

func TestSanitize_Idempotent(t *testing.T) {
	in := "uid=bob,dc=example,dc=com"
	require.Equal(t, Sanitize(in), Sanitize(Sanitize(in)))
}

func buildSearchResEntry(t *testing.T, dn string, attrs map[string][]string) *codec.Message {
	t.Helper()
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
	packet.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(1), "messageID"))

	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, 4, nil, "searchResEntry")
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, dn, "objectName"))
	attrSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attributes")
	for name, values := range attrs {
		pa := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "PartialAttribute")
		pa.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, name, "type"))
		set := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")
		for _, v := range values {
			set.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "value"))
		}
		pa.AppendChild(set)
		attrSeq.AppendChild(pa)
	}
	op.AppendChild(attrSeq)
	packet.AppendChild(op)

	msg, err := codec.Decode(packet.Bytes())
	require.NoError(t, err)
	return msg
}

func TestApply_InjectsFromDNMatchedFile(t *testing.T) {
	dir := t.TempDir()
	dn := "uid=bob,dc=example,dc=com"
	require.NoError(t, os.WriteFile(filepath.Join(dir, dn+".yaml"), []byte("phone: \"555-1234\"\nroles:\n  - admin\n  - user\n"), 0o644))

	ov := New(dir, "my_")
	msg := buildSearchResEntry(t, dn, map[string][]string{"cn": {"Bob"}})

	require.NoError(t, ov.Apply(msg))

	attrs := msg.EntryAttributes()
	byName := map[string][]string{}
	for _, a := range attrs {
		byName[a.Type] = a.Values
	}
	require.Equal(t, []string{"555-1234"}, byName["my_phone"])
	require.Equal(t, []string{"admin", "user"}, byName["my_roles"])
}

func TestApply_FallsBackToAttributeValueCandidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "mail"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mail", Sanitize("bob@example.com")+".yaml"), []byte("dept: eng\n"), 0o644))

	ov := New(dir, "my_")
	msg := buildSearchResEntry(t, "uid=nomatch,dc=example,dc=com", map[string][]string{"mail": {"bob@example.com"}})

	require.NoError(t, ov.Apply(msg))

	attrs := msg.EntryAttributes()
	found := false
	for _, a := range attrs {
		if a.Type == "my_dept" {
			found = true
			require.Equal(t, []string{"eng"}, a.Values)
		}
	}
	require.True(t, found)
}

func TestApply_NoCandidateMatch_LeavesEntryUnmodified(t *testing.T) {
	dir := t.TempDir()
	ov := New(dir, "my_")
	msg := buildSearchResEntry(t, "uid=nobody,dc=example,dc=com", map[string][]string{"cn": {"Nobody"}})

	require.NoError(t, ov.Apply(msg))
	require.Len(t, msg.EntryAttributes(), 1)
}
