package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var spaceCollapser = strings.NewReplacer("\t", " ", "\n", " ")

// AccountKey normalizes an account display name into the lookup key used by
// learning memory: unicode accents folded, lowercased, whitespace collapsed.
// "Café  Income" and "cafe income" map to the same key.
func AccountKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		// Folding never fails for valid UTF-8; fall back to the raw name.
		folded = name
	}

	key := strings.ToLower(strings.TrimSpace(spaceCollapser.Replace(folded)))
	return strings.Join(strings.Fields(key), " ")
}
