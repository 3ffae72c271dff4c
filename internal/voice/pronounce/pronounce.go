// Package pronounce scores a transcribed pronunciation attempt against an
// expected utterance, word by word. Scoring uses normalised Levenshtein
// similarity on letter-only, lowercased word forms, then classifies misses by
// the relative length of what was actually said.
package pronounce

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// CorrectThreshold is the similarity at or above which a word counts as
// correctly pronounced.
const CorrectThreshold = 0.8

// ErrorType classifies how a word attempt missed.
type ErrorType string

const (
	ErrorNone             ErrorType = "none"
	ErrorMinor            ErrorType = "minor"
	ErrorMissing          ErrorType = "missing"
	ErrorExtraSyllables   ErrorType = "extra_syllables"
	ErrorMissingSyllables ErrorType = "missing_syllables"
	ErrorIncorrect        ErrorType = "incorrect"
)

// WordResult is the verdict for a single expected word.
type WordResult struct {
	Spoken      string
	Expected    string
	Similarity  float64 // in [0, 1]
	Correct     bool
	ErrorType   ErrorType
	Suggestions []string
}

// Result is the verdict for a full attempt.
type Result struct {
	Words []WordResult

	// Score is the overall percentage: correct words over
	// max(expected words, transcribed words) × 100. The max denominator
	// penalises babbling extra words but is asymmetric about trailing
	// omissions; this is long-standing product behaviour, kept as is.
	Score float64
}

// Scorer scores attempts for one language, holding the tokenised expected
// utterance. Scorer is not safe for concurrent use; each recording flow owns
// its own instance.
type Scorer struct {
	language      string
	expectedWords []string
}

// NewScorer creates a Scorer for language (used for suggestion lookup).
func NewScorer(language string) *Scorer {
	return &Scorer{language: language}
}

// SetExpectedText lowercases and tokenises text on whitespace into the
// expected word list for subsequent [Scorer.Score] calls.
func (s *Scorer) SetExpectedText(text string) {
	s.expectedWords = strings.Fields(strings.ToLower(text))
}

// ExpectedWords returns the current expected word list.
func (s *Scorer) ExpectedWords() []string {
	return append([]string(nil), s.expectedWords...)
}

// Score evaluates a transcript against the expected words.
func (s *Scorer) Score(transcript string) Result {
	spokenWords := strings.Fields(strings.ToLower(transcript))

	res := Result{}
	correct := 0
	for i, expected := range s.expectedWords {
		spoken := ""
		if i < len(spokenWords) {
			spoken = spokenWords[i]
		}
		wr := s.CheckWord(spoken, expected)
		if wr.Correct {
			correct++
		}
		res.Words = append(res.Words, wr)
	}

	denom := len(s.expectedWords)
	if len(spokenWords) > denom {
		denom = len(spokenWords)
	}
	if denom == 0 || len(spokenWords) == 0 {
		res.Score = 0
		return res
	}
	res.Score = float64(correct) / float64(denom) * 100
	return res
}

// CheckWord scores a single spoken word against its expected form.
// Either side reducing to no letters yields an [ErrorMissing] verdict.
func (s *Scorer) CheckWord(spoken, expected string) WordResult {
	cleanSpoken := stripNonLetters(spoken)
	cleanExpected := stripNonLetters(expected)

	wr := WordResult{Spoken: spoken, Expected: expected}

	if cleanExpected == "" || cleanSpoken == "" {
		wr.ErrorType = ErrorMissing
		wr.Suggestions = suggestionsFor(s.language, cleanExpected)
		return wr
	}

	wr.Similarity = Similarity(cleanSpoken, cleanExpected)
	if wr.Similarity >= CorrectThreshold {
		wr.Correct = true
		wr.ErrorType = ErrorNone
		return wr
	}

	ratio := float64(len([]rune(cleanSpoken))) / float64(len([]rune(cleanExpected)))
	switch {
	case ratio > 1.5:
		wr.ErrorType = ErrorExtraSyllables
	case ratio < 0.5:
		wr.ErrorType = ErrorMissingSyllables
	case wr.Similarity >= 0.5:
		wr.ErrorType = ErrorMinor
	default:
		wr.ErrorType = ErrorIncorrect
	}
	wr.Suggestions = suggestionsFor(s.language, cleanExpected)
	return wr
}

// Similarity returns the normalised Levenshtein similarity of two words:
// 1 − editDistance / max(len). Equal words score 1; two empty words score 0.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 0
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// stripNonLetters removes every non-letter rune and lowercases the rest.
// unicode.IsLetter keeps accented Latin letters intact.
func stripNonLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
