package sink

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// Document is the shape indexed by the search sink.
type Document struct {
	PageURL    string  `json:"page_url"`
	AvgTTI     float64 `json:"avg_tti"`
	AvgTTAR    float64 `json:"avg_ttar"`
	EventCount int64   `json:"event_count"`
}

// SearchIndex is the search sink: an in-process inverted index over page
// URL path segments. Upserts are keyed by page_url; re-indexing the same
// document replaces the previous version in place.
type SearchIndex struct {
	mu    sync.RWMutex
	docs  map[string]Document
	terms map[string]map[string]struct{} // term -> set of page_urls
}

// Compile-time interface check.
var _ Sink = (*SearchIndex)(nil)

// NewSearchIndex creates an empty search index.
func NewSearchIndex() *SearchIndex {
	return &SearchIndex{
		docs:  make(map[string]Document),
		terms: make(map[string]map[string]struct{}),
	}
}

// Name implements Sink.
func (s *SearchIndex) Name() string { return "search" }

// Upsert implements Sink.
func (s *SearchIndex) Upsert(_ context.Context, row record.AggregateRow) error {
	doc := Document{
		PageURL:    row.PageURL,
		AvgTTI:     row.AvgTTI,
		AvgTTAR:    row.AvgTTAR,
		EventCount: row.EventCount,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop stale postings before re-indexing so repeated upserts of the
	// same key converge instead of accumulating.
	if old, ok := s.docs[doc.PageURL]; ok {
		for _, term := range tokenize(old.PageURL) {
			delete(s.terms[term], doc.PageURL)
		}
	}

	s.docs[doc.PageURL] = doc
	for _, term := range tokenize(doc.PageURL) {
		set := s.terms[term]
		if set == nil {
			set = make(map[string]struct{})
			s.terms[term] = set
		}
		set[doc.PageURL] = struct{}{}
	}
	return nil
}

// Get returns the indexed document for a page_url.
func (s *SearchIndex) Get(pageURL string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[pageURL]
	return doc, ok
}

// Search returns documents whose URL contains the given path segment,
// sorted by page_url for stable output.
func (s *SearchIndex) Search(term string) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for pageURL := range s.terms[normalize(term)] {
		docs = append(docs, s.docs[pageURL])
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].PageURL < docs[j].PageURL })
	return docs
}

// Len returns the number of indexed documents.
func (s *SearchIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// tokenize splits a page URL into lowercase path segments.
func tokenize(pageURL string) []string {
	var terms []string
	for _, seg := range strings.Split(pageURL, "/") {
		if seg = normalize(seg); seg != "" {
			terms = append(terms, seg)
		}
	}
	return terms
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
