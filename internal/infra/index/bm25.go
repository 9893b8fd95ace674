// Package index implements an in-memory inverted index over tool
// descriptions with BM25 ranking.
package index

import (
	"math"
	"sort"
	"sync"

	"toolgate/internal/domain"
	"toolgate/internal/infra/query"
)

type Options struct {
	K1 float64
	B  float64
}

type document struct {
	name   string
	seq    uint64
	terms  map[string]int
	length int
}

// Index is safe for concurrent use. Mutation takes the write lock so a
// search never observes a half-updated posting list.
type Index struct {
	mu       sync.RWMutex
	k1       float64
	b        float64
	docs     map[string]*document
	postings map[string]map[string]int
	totalLen int
	nextSeq  uint64
}

func New(opts Options) *Index {
	k1 := opts.K1
	if k1 <= 0 {
		k1 = domain.DefaultBM25K1
	}
	b := opts.B
	if b <= 0 {
		b = domain.DefaultBM25B
	}
	return &Index{
		k1:       k1,
		b:        b,
		docs:     make(map[string]*document),
		postings: make(map[string]map[string]int),
	}
}

// Add indexes the descriptor's searchable text. Adding an existing name
// is remove-then-add; the document gets a fresh sequence number.
func (i *Index) Add(desc domain.ToolDescriptor) {
	tokens := query.Tokenize(desc.SearchableText())

	i.mu.Lock()
	defer i.mu.Unlock()

	i.removeLocked(desc.Name)

	doc := &document{
		name:   desc.Name,
		seq:    i.nextSeq,
		terms:  make(map[string]int, len(tokens)),
		length: len(tokens),
	}
	i.nextSeq++

	for _, tok := range tokens {
		doc.terms[tok]++
	}
	for term, tf := range doc.terms {
		m := i.postings[term]
		if m == nil {
			m = make(map[string]int)
			i.postings[term] = m
		}
		m[desc.Name] = tf
	}

	i.docs[desc.Name] = doc
	i.totalLen += doc.length
}

// Remove drops the named document. Unknown names are a no-op.
func (i *Index) Remove(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removeLocked(name)
}

func (i *Index) removeLocked(name string) {
	doc, ok := i.docs[name]
	if !ok {
		return
	}
	for term := range doc.terms {
		if m := i.postings[term]; m != nil {
			delete(m, name)
			if len(m) == 0 {
				delete(i.postings, term)
			}
		}
	}
	i.totalLen -= doc.length
	delete(i.docs, name)
}

// Reset clears all documents and statistics.
func (i *Index) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs = make(map[string]*document)
	i.postings = make(map[string]map[string]int)
	i.totalLen = 0
	i.nextSeq = 0
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search scores every document containing at least one query term and
// returns up to limit hits ordered by descending score, ties broken by
// ascending registration sequence. An empty index or query yields an
// empty result, never an error. ErrIndexInconsistent is returned when a
// posting references a missing document; callers rebuild and retry.
func (i *Index) Search(queryText string, limit int) ([]domain.Hit, error) {
	terms := query.Tokenize(queryText)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	n := len(i.docs)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(i.totalLen) / float64(n)
	if avgLen <= 0 {
		avgLen = 1
	}

	// Dedupe query terms so a repeated term does not double-count.
	seen := make(map[string]struct{}, len(terms))
	scores := make(map[string]float64)
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		m := i.postings[term]
		if len(m) == 0 {
			continue
		}
		df := len(m)
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for name, tf := range m {
			doc, ok := i.docs[name]
			if !ok {
				return nil, domain.ErrIndexInconsistent
			}
			norm := 1 - i.b + i.b*float64(doc.length)/avgLen
			scores[name] += idf * (float64(tf) * (i.k1 + 1)) / (float64(tf) + i.k1*norm)
		}
	}

	hits := make([]domain.Hit, 0, len(scores))
	for name, score := range scores {
		hits = append(hits, domain.Hit{Name: name, Score: score})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return i.docs[hits[a].Name].seq < i.docs[hits[b].Name].seq
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
