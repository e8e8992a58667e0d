// Package text provides tokenization, keyword extraction and BM25 scoring
// for the keyword half of hybrid search.
package text

import (
	"math"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9_]*`)

// Common English stop words plus filler verbs that appear in task requests.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"will": true, "with": true, "not": true, "but": true, "you": true,
	"your": true, "can": true, "do": true, "does": true, "did": true,
	"should": true, "would": true, "could": true, "may": true, "might": true,
	"must": true, "shall": true, "need": true, "if": true, "then": true,
	"else": true, "when": true, "where": true, "which": true, "who": true,
	"whom": true, "what": true, "how": true, "why": true, "all": true,
	"any": true, "both": true, "each": true, "few": true, "more": true,
	"most": true, "other": true, "some": true, "such": true, "no": true,
	"nor": true, "only": true, "own": true, "same": true, "so": true,
	"than": true, "too": true, "very": true, "just": true, "also": true,
	"my": true, "me": true, "we": true, "our": true, "help": true,
	"want": true, "please": true, "i": true,
}

// IsStopWord reports whether the lowercase word is ignored by keyword search.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// Tokenize splits text into lowercase tokens of two or more characters.
func Tokenize(text string) []string {
	words := wordPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		lower := strings.ToLower(word)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// Keywords extracts unique, lowercase keywords in first-seen order.
// Stop words are removed. Short words are dropped unless they contain a
// digit, so form names like "w2" survive.
func Keywords(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	keywords := make([]string, 0)

	for _, word := range wordPattern.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if stopWords[lower] {
			continue
		}
		if len(lower) < 3 && !strings.ContainsAny(lower, "0123456789") {
			continue
		}
		if !seen[lower] {
			seen[lower] = true
			keywords = append(keywords, lower)
		}
	}

	return keywords
}

// FTSQuery builds an FTS5 MATCH expression that ORs the quoted keywords of
// text. Returns "" when text has no keywords.
func FTSQuery(text string) string {
	keywords := Keywords(text)
	if len(keywords) == 0 {
		return ""
	}
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = `"` + kw + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Overlap returns the fraction of query keywords that appear in doc.
// Words are compared by their stems, so "taxes" matches "tax".
func Overlap(query, doc string) float64 {
	keywords := Keywords(query)
	if len(keywords) == 0 {
		return 0
	}
	docStems := make(map[string]bool)
	for _, tok := range Tokenize(doc) {
		docStems[Stem(tok)] = true
	}
	hits := 0
	for _, kw := range keywords {
		if docStems[Stem(kw)] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

var suffixes = []string{"ations", "ation", "ings", "ing", "ies", "ied", "es", "ed", "s", "e"}

// Stem strips one common English suffix, keeping at least three
// characters. It is deliberately crude; "itemized" and "itemize" both
// become "itemiz".
func Stem(word string) string {
	for _, suf := range suffixes {
		if strings.HasSuffix(word, suf) && len(word)-len(suf) >= 3 {
			return word[:len(word)-len(suf)]
		}
	}
	return word
}

// BM25 parameters - standard values from literature
const (
	bm25K1 = 1.2  // Term frequency saturation parameter
	bm25B  = 0.75 // Length normalization parameter
)

// Corpus holds the statistics needed for BM25 scoring over a fixed set of
// documents.
type Corpus struct {
	docs      [][]string
	avgDocLen float64
	docFreqs  map[string]int
}

// NewCorpus tokenizes docs and computes document frequencies and the
// average document length.
func NewCorpus(docs []string) *Corpus {
	c := &Corpus{
		docs:     make([][]string, len(docs)),
		docFreqs: make(map[string]int),
	}
	totalLen := 0

	for i, doc := range docs {
		tokens := Tokenize(doc)
		c.docs[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]bool)
		for _, token := range tokens {
			if !seen[token] {
				seen[token] = true
				c.docFreqs[token]++
			}
		}
	}

	if len(docs) > 0 {
		c.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return c
}

// Len returns the number of documents in the corpus.
func (c *Corpus) Len() int {
	return len(c.docs)
}

// Score computes the BM25 relevance of document i for the query terms.
// Higher scores indicate greater relevance.
func (c *Corpus) Score(queryTerms []string, i int) float64 {
	totalDocs := len(c.docs)
	if len(queryTerms) == 0 || totalDocs == 0 || i < 0 || i >= totalDocs {
		return 0
	}

	docTerms := c.docs[i]
	docLen := float64(len(docTerms))
	if docLen == 0 {
		return 0
	}

	termFreqs := make(map[string]int)
	for _, term := range docTerms {
		termFreqs[term]++
	}

	score := 0.0
	for _, term := range queryTerms {
		tf := float64(termFreqs[term])
		if tf == 0 {
			continue
		}

		df := c.docFreqs[term]
		if df == 0 {
			df = 1
		}

		// IDF component: log((N - df + 0.5) / (df + 0.5) + 1)
		idf := math.Log((float64(totalDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		lengthNorm := 1 - bm25B + bm25B*(docLen/c.avgDocLen)
		tfNorm := (tf * (bm25K1 + 1)) / (tf + bm25K1*lengthNorm)

		score += idf * tfNorm
	}

	return score
}
