package crawler

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTopicLength is the minimum rune length of a topic token.
const MinTopicLength = 3

// stopWords holds English function words plus generic site boilerplate.
var stopWords = buildStopWords(`
the a an of for to in on at by is it and or but with from as this that
are was were be been being have has had do does did will would shall should
may might can could not no all any each every some its our your their
what which who whom how when where why about into through during before after
above below between up down out off over under again further then once also
more most very just than too so such only own same here there these those
home page site web contact us help search skip navigation menu main content
new go get one two use`)

func buildStopWords(list string) map[string]struct{} {
	words := strings.Fields(list)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// IsStopWord reports whether word is excluded from topics.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// ExtractTopics derives candidate topics from a page title and its headings.
// Single tokens and adjacent-token pairs are emitted; the result is sorted
// and free of duplicates.
func ExtractTopics(title string, headings []string) []string {
	texts := make([]string, 0, len(headings)+1)
	if title != "" {
		texts = append(texts, title)
	}
	texts = append(texts, headings...)

	seen := make(map[string]struct{})
	for _, text := range texts {
		tokens := tokenize(text)
		for _, tok := range tokens {
			if meaningful(tok) && !allDigits(tok) {
				seen[tok] = struct{}{}
			}
		}
		for i := 0; i+1 < len(tokens); i++ {
			a, b := tokens[i], tokens[i+1]
			if meaningful(a) && meaningful(b) {
				seen[a+" "+b] = struct{}{}
			}
		}
	}

	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// tokenize lowercases text, blanks out punctuation, and trims hyphens from
// each whitespace-separated token. Tokens that trim to empty keep their slot.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(text))

	fields := strings.Fields(cleaned)
	for i, f := range fields {
		fields[i] = strings.Trim(f, "-")
	}
	return fields
}

func meaningful(tok string) bool {
	return utf8.RuneCountInString(tok) >= MinTopicLength && !IsStopWord(tok)
}

func allDigits(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
