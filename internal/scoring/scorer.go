package scoring

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PassThreshold is the minimum accuracy (inclusive) for an answer to count as correct
const PassThreshold = 0.7

// Result holds the outcome of comparing a spoken answer with its reference text
type Result struct {
	// Accuracy is the combined score in [0, 1], rounded to 3 decimals
	Accuracy float64

	// BlockRatio is the matching-blocks similarity ratio
	BlockRatio float64

	// EditScore is 1 - (edit distance / longest length)
	EditScore float64

	// Passed reports whether Accuracy reached PassThreshold
	Passed bool

	// Message is the feedback shown to the speaker
	Message string
}

// Score compares a reference text with a candidate transcript.
// Both strings are lower-cased and trimmed before comparison; the result is
// the mean of the block-similarity ratio and the normalized edit score,
// rounded to 3 decimals. Two empty strings are a perfect match.
func Score(reference, candidate string) float64 {
	a, b := normalize(reference), normalize(candidate)
	return round3((blockRatio(a, b) + editScore(a, b)) / 2)
}

// Passed reports whether a score counts as a successful answer
func Passed(score float64) bool {
	return score >= PassThreshold
}

// Evaluate scores a candidate transcript and builds the feedback message
func Evaluate(reference, candidate string) Result {
	a, b := normalize(reference), normalize(candidate)
	ratio := blockRatio(a, b)
	edit := editScore(a, b)
	accuracy := round3((ratio + edit) / 2)

	res := Result{
		Accuracy:   accuracy,
		BlockRatio: ratio,
		EditScore:  edit,
		Passed:     Passed(accuracy),
	}
	if res.Passed {
		res.Message = fmt.Sprintf("Great job! Your pronunciation accuracy is %.1f%%", accuracy*100)
	} else {
		res.Message = fmt.Sprintf("Keep practicing! Your pronunciation accuracy is %.1f%%. Try speaking more clearly.", accuracy*100)
	}
	return res
}

// normalize applies full Unicode lower-casing ("İ" becomes "i̇") and trims
// whitespace, including the ASCII separators U+001C..U+001F.
// A Caser is stateful, so one is built per call.
func normalize(s string) string {
	return strings.TrimFunc(cases.Lower(language.Und).String(s), isSpace)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// blockRatio is 2*M / (len(a)+len(b)) where M is the number of characters
// covered by the longest matching blocks between a and b.
func blockRatio(a, b string) float64 {
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

func editScore(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// runes splits s into one element per code point for the sequence matcher
func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// round3 rounds the exact binary value to 3 decimals, ties to even
func round3(x float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 3, 64), 64)
	return v
}
