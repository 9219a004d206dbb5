// Package matching decides whether an incoming company name plausibly refers
// to an existing customer. Normalization and scoring are pure; nothing here
// touches the store.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// legalSuffixes are corporate form tokens stripped from the tail of a name.
// Trade-name tokens like "pharma" stay, they discriminate between companies.
var legalSuffixes = map[string]struct{}{
	"gmbh": {}, "ltd": {}, "limited": {}, "llc": {}, "llp": {}, "inc": {},
	"incorporated": {}, "corp": {}, "corporation": {}, "co": {}, "company": {},
	"plc": {}, "pvt": {}, "private": {}, "ag": {}, "sa": {}, "sarl": {},
	"srl": {}, "bv": {}, "nv": {}, "kg": {}, "oy": {}, "ab": {}, "spa": {},
	"pte": {}, "pty": {}, "kk": {}, "sdn": {}, "bhd": {},
}

// Normalize canonicalizes a company name for comparison only; the original
// string is what gets persisted. Empty or whitespace-only input normalizes to
// the empty string, which the matcher treats as "no match possible".
func Normalize(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return ""
	}

	folded, _, err := transform.String(stripAccents, lowered)
	if err != nil {
		folded = lowered
	}

	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	// Strip legal-form tokens off the tail, but never strip the whole name:
	// "Limited" on its own is still somebody's input.
	end := len(tokens)
	for end > 1 {
		if _, ok := legalSuffixes[tokens[end-1]]; !ok {
			break
		}
		end--
	}

	return strings.Join(tokens[:end], " ")
}
