// Package normalize canonicalizes raw address text into a stable form and
// derives the deterministic hash used for exact-match dedup. Two addresses
// that canonicalize identically hash identically across process restarts.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// componentOrder fixes the field ordering of the canonical string built from
// structured components
var componentOrder = []string{"street_number", "street_name", "city", "region", "postal_code"}

// expansions maps street-type and directional abbreviations to their full
// form so "123 Main St" and "123 MAIN STREET" canonicalize identically
var expansions = map[string]string{
	"ST":   "STREET",
	"AVE":  "AVENUE",
	"BLVD": "BOULEVARD",
	"DR":   "DRIVE",
	"RD":   "ROAD",
	"LN":   "LANE",
	"CT":   "COURT",
	"CIR":  "CIRCLE",
	"PL":   "PLACE",
	"HWY":  "HIGHWAY",
	"PKWY": "PARKWAY",
	"SQ":   "SQUARE",
	"TER":  "TERRACE",
	"N":    "NORTH",
	"S":    "SOUTH",
	"E":    "EAST",
	"W":    "WEST",
}

// unitMarkers are tokens that introduce unit/floor noise; the marker and the
// token that follows it are dropped
var unitMarkers = map[string]bool{
	"APT":       true,
	"APARTMENT": true,
	"SUITE":     true,
	"STE":       true,
	"UNIT":      true,
	"FLOOR":     true,
	"FL":        true,
	"#":         true,
}

// Canonicalize reduces raw address text to its canonical form: uppercase,
// punctuation stripped, abbreviations expanded, unit noise removed, whitespace
// collapsed. Returns "" when the input carries nothing canonicalizable.
func Canonicalize(raw string) string {
	var cleaned strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#':
			cleaned.WriteRune(r)
		default:
			cleaned.WriteRune(' ')
		}
	}

	tokens := strings.Fields(cleaned.String())
	out := make([]string, 0, len(tokens))
	skipNext := false
	for _, tok := range tokens {
		if skipNext {
			skipNext = false
			continue
		}
		if strings.HasPrefix(tok, "#") && tok != "#" {
			continue
		}
		if unitMarkers[tok] {
			skipNext = true
			continue
		}
		if full, ok := expansions[tok]; ok {
			tok = full
		}
		out = append(out, tok)
	}

	return strings.Join(out, " ")
}

// CanonicalizeComponents builds the canonical string from structured address
// components in fixed order (street-number, street-name, city, region,
// postal-code), ignoring unknown keys
func CanonicalizeComponents(components map[string]string) string {
	parts := make([]string, 0, len(componentOrder))
	for _, key := range componentOrder {
		if v := strings.TrimSpace(components[key]); v != "" {
			parts = append(parts, v)
		}
	}
	return Canonicalize(strings.Join(parts, " "))
}

// Hash derives the content-addressed hash of a canonical string. An empty
// canonical yields an empty hash; such candidates fall back to proximity
// matching only.
func Hash(canonical string) string {
	if canonical == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// HashAddress canonicalizes raw address text and hashes it in one step
func HashAddress(raw string) string {
	return Hash(Canonicalize(raw))
}
