package pronounce

import (
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"bonjour", "bonjour", 1},
		{"bonjoure", "bonjour", 0.875}, // one edit over eight runes
		{"chat", "chien", 1 - 4.0/5.0},
		{"", "bonjour", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCheckWord_Classification(t *testing.T) {
	s := NewScorer("fr")
	tests := []struct {
		name        string
		spoken      string
		expected    string
		wantCorrect bool
		wantType    ErrorType
	}{
		{"exact", "bonjour", "bonjour", true, ErrorNone},
		{"close enough", "bonjoure", "bonjour", true, ErrorNone},
		{"punctuation ignored", "bonjour!", "Bonjour,", true, ErrorNone},
		{"missing spoken", "", "bonjour", false, ErrorMissing},
		{"way too long", "bonjourbonjourbon", "bonjour", false, ErrorExtraSyllables},
		{"truncated", "bon", "bonjour", false, ErrorMissingSyllables},
		{"single slip passes", "bonsour", "bonjour", true, ErrorNone}, // 6/7 ≈ 0.857
		{"unrelated", "fromage", "bonjour", false, ErrorIncorrect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.CheckWord(tt.spoken, tt.expected)
			if got.Correct != tt.wantCorrect {
				t.Errorf("Correct = %v, want %v (similarity %v)", got.Correct, tt.wantCorrect, got.Similarity)
			}
			if got.ErrorType != tt.wantType {
				t.Errorf("ErrorType = %q, want %q", got.ErrorType, tt.wantType)
			}
		})
	}
}

func TestCheckWord_MinorVsIncorrect(t *testing.T) {
	s := NewScorer("es")

	// "gata" vs "gato": similarity 0.75, ratio 1 → minor.
	got := s.CheckWord("gata", "gato")
	if got.Correct {
		t.Fatal("gata/gato should not be correct at 0.75")
	}
	if got.ErrorType != ErrorMinor {
		t.Errorf("ErrorType = %q, want minor (similarity %v)", got.ErrorType, got.Similarity)
	}

	// "perro" vs "gatos": similarity well under 0.5 with comparable length.
	got = s.CheckWord("perro", "gatos")
	if got.ErrorType != ErrorIncorrect {
		t.Errorf("ErrorType = %q, want incorrect (similarity %v)", got.ErrorType, got.Similarity)
	}
}

func TestScorer_Score(t *testing.T) {
	s := NewScorer("fr")
	s.SetExpectedText("Bonjour, comment allez-vous ?")

	res := s.Score("bonjour komment allez-vous")
	if len(res.Words) != 4 {
		t.Fatalf("len(Words) = %d, want 4", len(res.Words))
	}
	// "?" tokenises to an expected word with no letters → missing.
	if res.Words[3].ErrorType != ErrorMissing {
		t.Errorf("Words[3].ErrorType = %q, want missing", res.Words[3].ErrorType)
	}
	// bonjour, komment (6/7), allez-vous all land above threshold.
	if got := res.Score; math.Abs(got-75) > 1e-9 {
		t.Errorf("Score = %v, want 75", got)
	}
}

func TestScorer_Score_ExtraWordsPenalise(t *testing.T) {
	s := NewScorer("es")
	s.SetExpectedText("hola")

	res := s.Score("hola que tal")
	// One correct word over three transcribed.
	if got := res.Score; math.Abs(got-100.0/3.0) > 1e-9 {
		t.Errorf("Score = %v, want %v", got, 100.0/3.0)
	}
}

func TestScorer_Score_EmptyTranscript(t *testing.T) {
	s := NewScorer("fr")
	s.SetExpectedText("bonjour tout le monde")

	res := s.Score("")
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0", res.Score)
	}
	if len(res.Words) != 4 {
		t.Fatalf("len(Words) = %d, want 4", len(res.Words))
	}
	for i, w := range res.Words {
		if w.ErrorType != ErrorMissing {
			t.Errorf("Words[%d].ErrorType = %q, want missing", i, w.ErrorType)
		}
	}
}

func TestSuggestionsFor(t *testing.T) {
	got := suggestionsFor("fr", "bonjour")
	if len(got) == 0 {
		t.Fatal("expected hints for a French word with nasal vowels")
	}
	if len(got) > 2 {
		t.Errorf("got %d hints, want at most 2", len(got))
	}

	// Unknown language falls back to the generic pair.
	got = suggestionsFor("xx", "hello")
	if len(got) != len(genericHints) {
		t.Errorf("generic hints = %d, want %d", len(got), len(genericHints))
	}

	if suggestionsFor("fr", "") != nil {
		t.Error("empty word should yield no hints")
	}
}
