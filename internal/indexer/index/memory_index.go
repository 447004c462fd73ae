package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tokenizer"
)

// DefaultLargeThreshold is the word count above which an index is considered
// large enough to flush.
const DefaultLargeThreshold = 100_000_000

// MemoryIndex maps each term to its Hits, one per document, in the order the
// documents were folded in. It is owned by a single goroutine at a time and
// moves between pipeline stages by value transfer, so it has no lock.
type MemoryIndex struct {
	terms     map[string][]Hit
	wordCount int64
	threshold int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		terms:     make(map[string][]Hit),
		threshold: DefaultLargeThreshold,
	}
}

// WithThreshold sets the word count at which IsLarge starts reporting true.
func (m *MemoryIndex) WithThreshold(words int64) *MemoryIndex {
	m.threshold = words
	return m
}

// FromDocument indexes a single document's text.
func FromDocument(docID uint32, text string) *MemoryIndex {
	m := NewMemoryIndex()
	for i, term := range tokenizer.Tokenize(text) {
		hits, ok := m.terms[term]
		if !ok {
			hits = []Hit{newHit(docID)}
		}
		hits[0] = hits[0].appendPosition(uint32(i))
		m.terms[term] = hits
		m.wordCount++
	}
	return m
}

// Merge moves every Hit of other into m. other must not be used afterwards.
func (m *MemoryIndex) Merge(other *MemoryIndex) {
	for term, hits := range other.terms {
		m.terms[term] = append(m.terms[term], hits...)
	}
	m.wordCount += other.wordCount
	other.terms = nil
	other.wordCount = 0
}

func (m *MemoryIndex) IsLarge() bool {
	return m.wordCount > m.threshold
}

func (m *MemoryIndex) IsEmpty() bool {
	return m.wordCount == 0
}

func (m *MemoryIndex) WordCount() int64 {
	return m.wordCount
}

// Len returns the number of distinct terms.
func (m *MemoryIndex) Len() int {
	return len(m.terms)
}

// Hits returns the Hits stored for term, or nil.
func (m *MemoryIndex) Hits(term string) []Hit {
	return m.terms[term]
}

// SortedTerms returns the terms in ascending byte order.
func (m *MemoryIndex) SortedTerms() []string {
	terms := make([]string, 0, len(m.terms))
	for term := range m.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
