package journal

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// document is what gets stored in Bleve for one entry.
type document struct {
	Path  string `json:"path"`
	Terms string `json:"terms"`
	Kind  string `json:"kind"`
}

func newDocument(entry *Entry) document {
	terms := pathTerms(entry.RelativePath)
	if entry.OldPath != "" {
		terms += " " + pathTerms(entry.OldPath)
	}
	return document{
		Path:  entry.RelativePath,
		Terms: terms,
		Kind:  entry.Kind.String(),
	}
}

// pathTerms splits a path into its words so "release-notes.md" is found by "notes".
// The standard analyzer would keep "notes.md" as a single token.
func pathTerms(path string) string {
	return strings.Join(strings.FieldsFunc(path, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	pathFieldMapping := bleve.NewKeywordFieldMapping()
	pathFieldMapping.Store = true
	pathFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("path", pathFieldMapping)

	termsFieldMapping := bleve.NewTextFieldMapping()
	termsFieldMapping.Store = false
	termsFieldMapping.IncludeInAll = true
	docMapping.AddFieldMappingsAt("terms", termsFieldMapping)

	kindFieldMapping := bleve.NewKeywordFieldMapping()
	kindFieldMapping.Store = true
	kindFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("kind", kindFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// SearchOptions configures a journal search.
type SearchOptions struct {
	Query      string
	Kind       string // restrict to one change kind, e.g. "Deleted"
	MaxResults int
}

// Search finds remembered paths by name. Query format:
//   - Plain text: match query (word-level matching)
//   - "quoted text": phrase query
//   - /regex/: regexp query against single words
//
// Results are ordered newest first; the second return value is the number of hits
// before truncation.
func (j *Journal) Search(options SearchOptions) ([]Entry, int, error) {
	if strings.TrimSpace(options.Query) == "" {
		return nil, 0, fmt.Errorf("query must not be empty")
	}
	if options.MaxResults <= 0 {
		options.MaxResults = defaultMaxResults
	}

	bleveQuery := buildQuery(options.Query)
	if options.Kind != "" {
		kindQuery := bleve.NewTermQuery(options.Kind)
		kindQuery.SetField("kind")
		bleveQuery = bleve.NewConjunctionQuery(bleveQuery, kindQuery)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	searchRequest := bleve.NewSearchRequest(bleveQuery)
	searchRequest.Size = j.entries.Len() + 1
	searchResults, err := j.index.Search(searchRequest)
	if err != nil {
		return nil, 0, fmt.Errorf("searching journal: %w", err)
	}

	matches := make([]Entry, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		entry, ok := j.entries.Peek(hit.ID)
		if !ok {
			continue
		}
		matches = append(matches, *entry)
	}

	sort.Slice(matches, func(a, b int) bool { return matches[a].Seq > matches[b].Seq })
	total := len(matches)
	if len(matches) > options.MaxResults {
		matches = matches[:options.MaxResults]
	}
	return matches, total, nil
}

// buildQuery parses the query string into a Bleve query.
func buildQuery(queryString string) query.Query {
	queryString = strings.TrimSpace(queryString)

	if strings.HasPrefix(queryString, "/") && strings.HasSuffix(queryString, "/") && len(queryString) > 2 {
		return bleve.NewRegexpQuery(queryString[1 : len(queryString)-1])
	}

	if strings.HasPrefix(queryString, "\"") && strings.HasSuffix(queryString, "\"") && len(queryString) > 2 {
		return bleve.NewMatchPhraseQuery(pathTerms(queryString[1 : len(queryString)-1]))
	}

	return bleve.NewMatchQuery(pathTerms(queryString))
}
