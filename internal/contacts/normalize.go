package contacts

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMinDigits is the shortest accepted number after normalization.
const DefaultMinDigits = 8

// ErrInvalidContact is returned for values that do not normalize to a number.
var ErrInvalidContact = errors.New("invalid contact")

// Normalizer turns raw phone-style values into contact identifiers.
type Normalizer struct {
	// MinDigits rejects shorter numbers. Zero means DefaultMinDigits.
	MinDigits int

	// Suffix is appended to every identifier, e.g. "@s.whatsapp.net".
	Suffix string
}

// Normalize strips every non-digit character from raw and appends Suffix.
func (n Normalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw) + len(n.Suffix))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	min := n.MinDigits
	if min <= 0 {
		min = DefaultMinDigits
	}
	if b.Len() < min {
		return "", fmt.Errorf("%w: %q has fewer than %d digits", ErrInvalidContact, raw, min)
	}

	b.WriteString(n.Suffix)
	return b.String(), nil
}

// NormalizeAll normalizes values, drops invalid ones and removes duplicates,
// keeping the first occurrence. It returns the number of dropped values.
func (n Normalizer) NormalizeAll(values []string) ([]string, int) {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	dropped := 0

	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		id, err := n.Normalize(v)
		if err != nil {
			dropped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, dropped
}
