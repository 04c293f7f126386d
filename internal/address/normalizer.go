// Package address derives stable building-level identity keys from raw
// address strings. The key is the deduplication mechanism for discovery:
// every raw spelling of the same physical building must collapse to the
// same key.
package address

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// ErrUnparseable is returned when a raw address cannot be reduced to at
// least a street number followed by a street name. Candidates with such
// addresses are skipped at discovery time, never persisted.
var ErrUnparseable = eris.New("address: cannot parse street number and name")

var (
	punctRe  = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`^\d+[a-z]?$`)

	// Unit designators terminate the building-level portion of an address.
	// Everything from the designator onward is dropped so that "Apt 4B" and
	// "Suite 200" at the same street address share one identity key.
	unitRe = regexp.MustCompile(`\b(apt|apartment|unit|suite|ste|fl|floor|rm|room|no)\b.*$`)
	hashRe = regexp.MustCompile(`#\s*\S+`)
)

// Street-suffix and directional abbreviations expanded during
// canonicalization. Expansion (rather than truncation) keeps keys readable
// in logs and query output.
var abbreviations = map[string]string{
	"st":   "street",
	"str":  "street",
	"ave":  "avenue",
	"av":   "avenue",
	"blvd": "boulevard",
	"rd":   "road",
	"dr":   "drive",
	"ln":   "lane",
	"pl":   "place",
	"ct":   "court",
	"cir":  "circle",
	"ter":  "terrace",
	"pkwy": "parkway",
	"hwy":  "highway",
	"sq":   "square",
	"n":    "north",
	"s":    "south",
	"e":    "east",
	"w":    "west",
	"ne":   "northeast",
	"nw":   "northwest",
	"se":   "southeast",
	"sw":   "southwest",
}

var folder = cases.Fold()

// Normalize canonicalizes a raw address into an identity key. It is
// deterministic, case- and whitespace-insensitive, and collapses
// unit/suite suffixes to building-level identity.
func Normalize(raw string) (string, error) {
	s := folder.String(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrUnparseable
	}

	s = hashRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = unitRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	tokens := strings.Fields(s)
	if len(tokens) < 2 {
		return "", ErrUnparseable
	}
	if !numberRe.MatchString(tokens[0]) {
		return "", ErrUnparseable
	}

	for i := 1; i < len(tokens); i++ {
		if full, ok := abbreviations[tokens[i]]; ok {
			tokens[i] = full
		}
	}

	// A street number alone, or a number followed by another bare number
	// (e.g. a zip fragment), is not a street name.
	if numberRe.MatchString(tokens[1]) {
		return "", ErrUnparseable
	}

	return strings.Join(tokens, "-"), nil
}
