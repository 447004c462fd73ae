package index

import (
	"encoding/binary"
	"fmt"
)

// Hit records every occurrence of one term in one document:
// [document_id u32][position u32]*n, little-endian.
type Hit []byte

// newHit starts a Hit for docID with room for one position.
func newHit(docID uint32) Hit {
	h := make(Hit, 4, 8)
	binary.LittleEndian.PutUint32(h, docID)
	return h
}

func (h Hit) appendPosition(pos uint32) Hit {
	return binary.LittleEndian.AppendUint32(h, pos)
}

// DocID returns the document the Hit belongs to.
func (h Hit) DocID() uint32 {
	return binary.LittleEndian.Uint32(h[0:4])
}

// Positions returns the token ordinals recorded in the Hit.
func (h Hit) Positions() []uint32 {
	n := (len(h) - 4) / 4
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, binary.LittleEndian.Uint32(h[4+i*4:]))
	}
	return out
}

// Words decodes a concatenated posting region into its u32 words. The
// on-disk format does not delimit Hits, so callers that know the layout of
// their data regroup the words themselves.
func Words(postings []byte) ([]uint32, error) {
	if len(postings)%4 != 0 {
		return nil, fmt.Errorf("posting region of %d bytes is not a multiple of 4", len(postings))
	}
	out := make([]uint32, 0, len(postings)/4)
	for i := 0; i < len(postings); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(postings[i:]))
	}
	return out, nil
}
