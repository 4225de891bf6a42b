// Package chunk splits payloads into link-sized fragments.
package chunk

import "github.com/vitaminmoo/blebench/internal/transport"

// Fragment is one length-bounded slice of a payload, tagged with its position.
type Fragment struct {
	Index int
	Data  []byte
}

// Split cuts payload into fragments of at most size bytes, in order.
// An empty payload yields no fragments. Fragments are copies, so the caller
// may reuse payload afterwards.
func Split(payload []byte, size int) ([]Fragment, error) {
	if size <= 0 {
		return nil, transport.Invalidf("fragment size must be positive, got %d", size)
	}

	frags := make([]Fragment, 0, Count(len(payload), size))
	for offset := 0; offset < len(payload); offset += size {
		end := offset + size
		if end > len(payload) {
			end = len(payload)
		}
		data := make([]byte, end-offset)
		copy(data, payload[offset:end])
		frags = append(frags, Fragment{Index: len(frags), Data: data})
	}
	return frags, nil
}

// Count returns how many fragments Split produces for n bytes: ceil(n/size).
func Count(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
