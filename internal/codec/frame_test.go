package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// shortReader dribbles out at most n bytes per Read call, regardless of how
// much the caller asked for, to exercise the "bytes remaining, not one read
// call" framing discipline the codec must honor.
type shortReader struct {
	buf   []byte
	chunk int
}

func (s *shortReader) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		return 0, io.EOF
	}
	n := s.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}
	copy(p, s.buf[:n])
	s.buf = s.buf[n:]
	return n, nil
}

func shortFrame(tag byte, content []byte) []byte {
	frame := []byte{tag}
	frame = append(frame, encodeLength(len(content))...)
	return append(frame, content...)
}

func encodeLength(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte(n & 0xFF)}, b...)
		n >>= 8
	}
	return append([]byte{byte(0x80 | len(b))}, b...)
}

func TestReadFrame_ShortForm(t *testing.T) {
	content := []byte("hello")
	frame := shortFrame(0x30, content)

	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	require.Equal(t, frame, got)
}

func TestReadFrame_LongFormAcrossShortReads(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, 64*1024) // regression guard: scenario 6
	frame := shortFrame(0x64, content)

	r := &shortReader{buf: frame, chunk: 7}
	got, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, frame, got)
}

func TestReadFrame_ClosedAtBoundary(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrClosed)
}

func TestReadFrame_TruncatedMidFrame(t *testing.T) {
	full := shortFrame(0x30, []byte("hello world"))
	partial := full[:len(full)-4]

	_, err := ReadFrame(bytes.NewReader(partial))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReadFrame_MalformedIndefiniteLength(t *testing.T) {
	frame := []byte{0x30, 0x80, 0x00, 0x00}
	_, err := ReadFrame(bytes.NewReader(frame))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReadFrame_MalformedOversizeLengthOctetCount(t *testing.T) {
	frame := []byte{0x30, 0x85, 0, 0, 0, 0, 0}
	_, err := ReadFrame(bytes.NewReader(frame))
	require.ErrorIs(t, err, ErrMalformed)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestReadFrame_NonEOFReadError(t *testing.T) {
	_, err := ReadFrame(errReader{err: errors.New("boom")})
	require.ErrorIs(t, err, ErrTruncated)
}
