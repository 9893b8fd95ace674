// Package query normalizes free-text listing requests before they reach
// the ranked index. Everything here is a pure function of its input and
// safe for concurrent use.
package query

import (
	"strings"
	"unicode"

	"toolgate/internal/domain"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "how": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {},
	"on": {}, "or": {}, "please": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "want": {}, "with": {}, "you": {},
}

// synonyms expands common shorthand into the vocabulary tool authors use
// in descriptions. Expansions are appended to the enhanced query, never
// substituted, so the original token still matches.
var synonyms = map[string]string{
	"msg":    "message",
	"dir":    "directory",
	"del":    "delete",
	"doc":    "document",
	"repo":   "repository",
	"config": "configuration",
	"env":    "environment",
	"info":   "information",
}

var lookupVerbs = map[string]struct{}{
	"read": {}, "get": {}, "list": {}, "find": {}, "search": {},
	"show": {}, "fetch": {}, "view": {}, "check": {}, "lookup": {},
}

var actionVerbs = map[string]struct{}{
	"send": {}, "create": {}, "delete": {}, "write": {}, "run": {},
	"update": {}, "set": {}, "add": {}, "remove": {}, "start": {},
	"stop": {}, "execute": {}, "make": {}, "post": {},
}

// Tokenize lowercases, strips punctuation, splits on whitespace and drops
// stop words. The same tokenizer feeds both indexed documents and queries
// so term statistics line up.
func Tokenize(text string) []string {
	normalized := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)

	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Process turns a free-text request into a normalized, enhanced query.
func Process(text string) domain.ProcessedQuery {
	tokens := Tokenize(text)

	enhanced := make([]string, 0, len(tokens)+2)
	enhanced = append(enhanced, tokens...)
	for _, tok := range tokens {
		if exp, ok := synonyms[tok]; ok {
			enhanced = append(enhanced, exp)
		}
	}

	return domain.ProcessedQuery{
		Original: text,
		Tokens:   tokens,
		Intent:   classifyIntent(tokens),
		Enhanced: strings.Join(enhanced, " "),
	}
}

// classifyIntent tags the query by the first recognizable verb. The tag
// only feeds logs and metrics.
func classifyIntent(tokens []string) domain.QueryIntent {
	for _, tok := range tokens {
		if _, ok := lookupVerbs[tok]; ok {
			return domain.IntentLookup
		}
		if _, ok := actionVerbs[tok]; ok {
			return domain.IntentAction
		}
	}
	return domain.IntentUnknown
}
