package cart

import (
	"slices"
	"strings"

	"delivery-cart/internal/models"
)

const optionsDelimiter = "|"

// LineKey identifies a line item: the same product with the same options is the same line.
type LineKey struct {
	ID      string
	Options string
}

// OptionsKey returns the canonical form of an options mapping: key:value pairs sorted by key
// and joined with "|". An empty or nil mapping yields "".
func OptionsKey(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ":" + options[k]
	}
	return strings.Join(pairs, optionsDelimiter)
}

// KeyOf returns the identity of a line item
func KeyOf(item models.LineItem) LineKey {
	return LineKey{ID: item.ID, Options: OptionsKey(item.Options)}
}
