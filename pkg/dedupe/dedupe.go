// Package dedupe decides whether two player descriptions refer to the same
// footballer. It has no storage dependencies.
package dedupe

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Outcome is the verdict of comparing two candidates.
type Outcome int

const (
	Different Outcome = iota
	Same
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Same:
		return "same"
	case Ambiguous:
		return "ambiguous"
	default:
		return "different"
	}
}

// MarshalText renders the outcome as its lowercase name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "same":
		*o = Same
	case "ambiguous":
		*o = Ambiguous
	case "different":
		*o = Different
	default:
		return fmt.Errorf("unknown match outcome %q", text)
	}
	return nil
}

// Candidate is the identifying subset of a player record.
type Candidate struct {
	Name       string
	ExternalID string
	BirthDate  string // YYYY-MM-DD or empty
	Team       string
}

// Match compares a and b. Rules apply in order and the first that decides wins:
//
//  1. both external ids known: equal is Same, unequal is Different
//  2. normalised names differ: Different
//  3. both birth dates known and unequal: Different
//  4. both teams known and equal: Same
//  5. both birth dates known (and therefore equal): Same
//  6. otherwise Ambiguous
func Match(a, b Candidate) Outcome {
	extA, extB := strings.TrimSpace(a.ExternalID), strings.TrimSpace(b.ExternalID)
	if extA != "" && extB != "" {
		if extA == extB {
			return Same
		}
		return Different
	}

	if Normalize(a.Name) != Normalize(b.Name) {
		return Different
	}

	bornA, bornB := strings.TrimSpace(a.BirthDate), strings.TrimSpace(b.BirthDate)
	bothBorn := bornA != "" && bornB != ""
	if bothBorn && bornA != bornB {
		return Different
	}

	teamA, teamB := Normalize(a.Team), Normalize(b.Team)
	if teamA != "" && teamB != "" && teamA == teamB {
		return Same
	}

	if bothBorn {
		return Same
	}
	return Ambiguous
}

// foldAccents returns a fresh chain per call; a transform.Chain carries
// buffers and cannot be shared between goroutines.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Normalize folds accents, lowercases, and collapses every run of
// non-alphanumeric characters into a single space. "  José  Ñúñez-Pérez " and
// "jose nunez perez" normalise to the same key.
func Normalize(s string) string {
	folded, _, err := transform.String(foldAccents(), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}
