package search

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/fileutil"
)

const (
	Version = "class-search-v1"

	// DefaultLimit caps every result list.
	DefaultLimit = 100
)

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

type Document struct {
	ID     string         `json:"id"`   // internal class name
	Name   string         `json:"name"` // simple name
	Length int            `json:"length"`
	Terms  map[string]int `json:"terms"`
}

type Index struct {
	Version       string         `json:"version"`
	Archive       string         `json:"archive"`
	DocumentCount int            `json:"document_count"`
	AvgDocLength  float64        `json:"avg_doc_length"`
	DocFreq       map[string]int `json:"doc_freq"`
	Documents     []Document     `json:"documents"`
}

type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Build indexes every outer and nested class of arc by simple name.
func Build(arc *archive.Archive) *Index {
	index := &Index{Version: Version, DocFreq: map[string]int{}}
	if arc == nil {
		return index
	}
	index.Archive = arc.Version()

	totalLength := 0
	for _, path := range arc.ClassNames() {
		id := archive.ClassName(path)
		name := archive.SimpleName(id)
		terms := buildTerms(name, packageOf(id))
		length := 0
		for _, count := range terms {
			length += count
		}
		if length == 0 {
			continue
		}
		index.Documents = append(index.Documents, Document{ID: id, Name: name, Length: length, Terms: terms})
		totalLength += length
		for term := range terms {
			index.DocFreq[term]++
		}
	}

	sort.Slice(index.Documents, func(i, j int) bool {
		return index.Documents[i].ID < index.Documents[j].ID
	})
	index.DocumentCount = len(index.Documents)
	if index.DocumentCount > 0 {
		index.AvgDocLength = float64(totalLength) / float64(index.DocumentCount)
	}
	return index
}

// Path is where the index of an archive version is cached.
func Path(stateDir, version string) string {
	return filepath.Join(stateDir, "search", version+".json")
}

func Write(stateDir string, index *Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode search index: %w", err)
	}
	data = append(data, '\n')
	path := Path(stateDir, index.Archive)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create search dir: %w", err)
	}
	return fileutil.WriteIfChanged(path, data)
}

// Load reads the cached index of version. A missing index is reported
// with os.ErrNotExist.
func Load(stateDir, version string) (*Index, error) {
	path := Path(stateDir, version)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("search index missing at %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read search index: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode search index: %w", err)
	}
	if index.Version != Version {
		return nil, fmt.Errorf("search index at %s has version %q: %w", path, index.Version, os.ErrNotExist)
	}
	if index.DocFreq == nil {
		index.DocFreq = map[string]int{}
	}
	return &index, nil
}

// Search matches query against simple class names. Classes whose simple
// name contains the query (case-insensitive) always come first, ranked
// by BM25; with no substring hit the BM25 ranking over name terms is
// used, then a typo-tolerant fallback. An empty query has no results.
func Search(index *Index, query string, limit int) []Result {
	if index == nil || len(index.Documents) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	terms := uniqueTerms(query)
	needle := strings.ToLower(query)

	substring := make([]Result, 0)
	for _, doc := range index.Documents {
		if strings.Contains(strings.ToLower(doc.Name), needle) {
			score := index.score(doc, terms)
			if strings.EqualFold(doc.Name, query) {
				score += 100
			}
			substring = append(substring, Result{ID: doc.ID, Score: score})
		}
	}
	if len(substring) > 0 {
		return rank(substring, limit)
	}

	results := make([]Result, 0)
	for _, doc := range index.Documents {
		if score := index.score(doc, terms); score > 0 {
			results = append(results, Result{ID: doc.ID, Score: score})
		}
	}
	if len(results) > 0 {
		return rank(results, limit)
	}
	return fuzzyNameFallback(index.Documents, query, limit)
}

func (index *Index) score(doc Document, terms []string) float64 {
	k1 := 1.2
	b := 0.75
	n := float64(index.DocumentCount)
	avgLen := index.AvgDocLength
	if avgLen <= 0 {
		avgLen = 1
	}

	score := 0.0
	docLen := float64(doc.Length)
	for _, term := range terms {
		tf := float64(doc.Terms[term])
		if tf <= 0 {
			continue
		}
		df := float64(index.DocFreq[term])
		if df <= 0 {
			continue
		}
		idf := math.Log(1.0 + ((n - df + 0.5) / (df + 0.5)))
		score += idf * (tf * (k1 + 1.0)) / (tf + k1*(1.0-b+b*(docLen/avgLen)))
	}
	return score
}

func rank(results []Result, limit int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func uniqueTerms(query string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, term := range append(tokenize(query), splitWords(query)...) {
		if seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return out
}

func packageOf(className string) string {
	if idx := strings.LastIndex(className, "/"); idx != -1 {
		return className[:idx]
	}
	return ""
}

func buildTerms(name, pkg string) map[string]int {
	terms := make(map[string]int)
	addWeighted(terms, tokenize(name), 4)
	addWeighted(terms, splitWords(name), 2)
	addWeighted(terms, tokenize(pkg), 1)
	return terms
}

func addWeighted(terms map[string]int, tokens []string, weight int) {
	for _, token := range tokens {
		terms[token] += weight
	}
}

func tokenize(value string) []string {
	value = strings.ToLower(value)
	if value == "" {
		return nil
	}
	return tokenPattern.FindAllString(value, -1)
}

// splitWords breaks camel case and $-separated names into lowercase
// words: "HttpURLConnection$Entry" -> http, url, connection, entry.
func splitWords(value string) []string {
	runes := []rune(value)
	words := make([]string, 0)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, strings.ToLower(string(runes[start:end])))
		}
		start = -1
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}

func fuzzyNameFallback(documents []Document, query string, limit int) []Result {
	needle := normalizeForFuzzy(query)
	if needle == "" {
		return nil
	}

	results := make([]Result, 0)
	for _, doc := range documents {
		candidate := normalizeForFuzzy(doc.Name)
		if candidate == "" {
			continue
		}
		distance := levenshteinDistance(needle, candidate)
		threshold := len(candidate) / 3
		if threshold < 2 {
			threshold = 2
		}
		if distance > threshold {
			continue
		}
		results = append(results, Result{ID: doc.ID, Score: 1.0 / float64(1+distance)})
	}
	return rank(results, limit)
}

func normalizeForFuzzy(value string) string {
	tokens := tokenize(value)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, "")
}

func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current := make([]int, len(b)+1)
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			current[j] = min(current[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = current
	}

	return prev[len(b)]
}
