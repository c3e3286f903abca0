package extract

import (
	"strconv"
	"strings"
	"unicode"
)

// Packing is the classification of a raw packing string. At most one field
// is set.
type Packing struct {
	Weight   *string
	Volume   *string
	Quantity *int
}

var (
	weightUnits   = map[string]struct{}{"г": {}, "гр": {}, "кг": {}, "g": {}, "gr": {}, "kg": {}}
	volumeUnits   = map[string]struct{}{"мл": {}, "л": {}, "ml": {}, "l": {}}
	quantityUnits = map[string]struct{}{"шт": {}, "pcs": {}}
)

// ClassifyPacking derives the unit token from the letters of packing and
// files packing under weight, volume or quantity. Quantity is the integer
// formed by all digits of packing. Unknown units and quantities without
// digits leave every field nil.
func ClassifyPacking(packing *string) Packing {
	if packing == nil {
		return Packing{}
	}
	raw := *packing
	switch unit := unitToken(raw); {
	case contains(weightUnits, unit):
		return Packing{Weight: &raw}
	case contains(volumeUnits, unit):
		return Packing{Volume: &raw}
	case contains(quantityUnits, unit):
		n, ok := digits(raw)
		if !ok {
			return Packing{}
		}
		return Packing{Quantity: &n}
	default:
		return Packing{}
	}
}

func unitToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func digits(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
