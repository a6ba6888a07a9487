package pairing

import (
	"net"
	"sync"
	"testing"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestPair_RememberAndClearPending(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()
	p := New(1, client)

	p.RememberPending(5, &PendingRequest{ClientMessageID: 5, Op: codec.OpSearchRequest})

	req, ok := p.Pending(5)
	require.True(t, ok)
	require.Equal(t, codec.OpSearchRequest, req.Op)

	p.ClearPending(5)
	_, ok = p.Pending(5)
	require.False(t, ok)
}

func TestPair_CloseIsIdempotent(t *testing.T) {
	client, _ := net.Pipe()
	server, _ := net.Pipe()
	p := New(1, client)
	p.SetServer(server)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Close()
		}()
	}
	wg.Wait()

	select {
	case <-p.Done():
	default:
		t.Fatal("Done channel should be closed after Close")
	}
}

func TestPair_PendingSurvivesMultipleEntriesUntilCleared(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()
	p := New(1, client)

	sp := &codec.SearchParams{BaseDN: "dc=example"}
	p.RememberPending(9, &PendingRequest{ClientMessageID: 9, Op: codec.OpSearchRequest, Search: sp})

	_, ok := p.Pending(9)
	require.True(t, ok)
	_, ok = p.Pending(9)
	require.True(t, ok, "search responses arrive in multiple frames before the entry clears")

	p.ClearPending(9)
	_, ok = p.Pending(9)
	require.False(t, ok)
}

func TestList_AddRemoveLen(t *testing.T) {
	l := NewList()
	client1, _ := net.Pipe()
	client2, _ := net.Pipe()
	defer client1.Close()
	defer client2.Close()

	p1 := l.Add(client1)
	p2 := l.Add(client2)
	require.NotEqual(t, p1.ID, p2.ID)
	require.Equal(t, 2, l.Len())

	l.Remove(p1.ID)
	require.Equal(t, 1, l.Len())

	_, ok := l.Get(p1.ID)
	require.False(t, ok)
	_, ok = l.Get(p2.ID)
	require.True(t, ok)
}

func TestList_EachVisitsSnapshot(t *testing.T) {
	l := NewList()
	client, _ := net.Pipe()
	defer client.Close()
	l.Add(client)

	visited := 0
	l.Each(func(p *Pair) { visited++ })
	require.Equal(t, 1, visited)
}
