package memory

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// EntityID derives a stable identifier from a typed natural key.
// The same (kind, parts) tuple always yields the same id regardless of
// casing or surrounding whitespace, so callers can re-derive ids instead
// of storing a mapping.
func EntityID(kind string, parts ...string) string {
	canonical := make([]string, 0, len(parts)+1)
	canonical = append(canonical, strings.ToLower(strings.TrimSpace(kind)))
	for _, p := range parts {
		canonical = append(canonical, strings.ToLower(strings.TrimSpace(p)))
	}

	h := sha1.Sum([]byte(strings.Join(canonical, "::")))
	digest := hex.EncodeToString(h[:])[:10]

	slugged := make([]string, len(canonical))
	for i, c := range canonical {
		slugged[i] = slugify(c)
	}
	return strings.Join(slugged, ":") + ":" + digest
}

func PersonID(name string) string { return EntityID("person", name) }

func WalletID(owner, label string) string { return EntityID("wallet", owner, label) }

func PropertyID(address string) string { return EntityID("property", address) }

func BusinessID(name string) string { return EntityID("business", name) }

func SecurityID(symbol string) string { return EntityID("security", symbol) }

// slugify keeps [a-z0-9] and folds every other run of characters into a
// single underscore. An empty result becomes "item" so ids never carry an
// empty segment.
func slugify(value string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "item"
	}
	return out
}
