package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLog_RespectsPerCategoryToggle(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, map[Category]bool{CategoryPkt: true, CategoryCache: false})

	l.Log(CategoryPkt, "frame observed", map[string]any{"bytes": 42})
	l.Log(CategoryCache, "should not appear", nil)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "frame observed", line["message"])
	require.Equal(t, "pkt", line["category"])
	require.Equal(t, float64(42), line["bytes"])
}

func TestLog_DisabledCategoryEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, map[Category]bool{CategoryCache: false})

	l.Log(CategoryCache, "muted", nil)

	require.Equal(t, 0, buf.Len())
}

func TestSetFlags_ChangesEnabledSet(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, map[Category]bool{CategoryCache: false})

	l.Log(CategoryCache, "before", nil)
	require.Equal(t, 0, buf.Len())

	l.SetFlags(map[Category]bool{CategoryCache: true})
	l.Log(CategoryCache, "after", nil)
	require.Greater(t, buf.Len(), 0)
}

func TestFlagsFromDebug_MapsEveryCategory(t *testing.T) {
	d := config.Debug{Info: true, Pkt: true, Cache2: true}
	flags := FlagsFromDebug(d)

	require.True(t, flags[CategoryInfo])
	require.True(t, flags[CategoryPkt])
	require.True(t, flags[CategoryCache2])
	require.False(t, flags[CategoryWarn])
	require.False(t, flags[CategoryNet])
}

func TestBuildWriter_NoSinksEnabled_ReturnsDiscard(t *testing.T) {
	doc := &config.Document{}
	w, err := BuildWriter(doc)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.Equal(t, io.Discard, w)
}

func TestBuildWriter_FileSink(t *testing.T) {
	dir := t.TempDir()
	doc := &config.Document{LogFile: dir + "/out.log"}

	w, err := BuildWriter(doc)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
}
