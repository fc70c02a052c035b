package fetch

// reader.go wraps upstream response bodies before decoding:
//
//   - bomSkippingReader drops a leading UTF-8 BOM, which some upstreams
//     prepend to JSON and which JSON decoders reject
//   - limitReader fails once more than max bytes have been read

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxBodyBytes caps an upstream payload.
const DefaultMaxBodyBytes = 64 << 20

// ErrBodyTooLarge is returned when a payload exceeds the configured limit.
var ErrBodyTooLarge = errors.New("upstream response too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type bomSkippingReader struct {
	r       io.Reader
	checked bool
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: r}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var head [3]byte
		n, err := io.ReadFull(b.r, head[:])
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n == 3 && bytes.Equal(head[:], utf8BOM) {
			n = 0
		}
		b.pending = append(b.pending, head[:n]...)
	}
	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}
	return b.r.Read(p)
}

type limitReader struct {
	r     io.Reader
	max   int64
	count int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.count += int64(n)
	if l.count > l.max {
		return n, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, l.max)
	}
	return n, err
}

// readBody reads at most max bytes from r with any BOM removed.
func readBody(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	return io.ReadAll(newBOMSkippingReader(&limitReader{r: r, max: max}))
}
