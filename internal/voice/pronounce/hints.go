package pronounce

import "strings"

// phonemeHint ties a spelling pattern to a coaching tip for one language.
type phonemeHint struct {
	pattern string
	tip     string
}

// phonemeHints maps a language code to its tricky spelling patterns, checked
// in order against the expected word. Patterns are matched on the cleaned
// (letters-only, lowercase) form.
var phonemeHints = map[string][]phonemeHint{
	"fr": {
		{"on", "Nasal vowel: let the air pass through your nose, don't pronounce the 'n'."},
		{"an", "Nasal vowel: 'an' sounds like a nasalised 'ah', the 'n' is silent."},
		{"in", "Nasal vowel: 'in' is a nasalised 'eh' sound, keep the 'n' silent."},
		{"ou", "'ou' is a single sound like the 'oo' in 'food'."},
		{"u", "French 'u': say 'ee' while rounding your lips tightly."},
		{"r", "The French 'r' comes from the back of the throat, like a soft gargle."},
	},
	"es": {
		{"rr", "Roll the 'rr' by vibrating the tip of your tongue against the ridge behind your teeth."},
		{"ñ", "'ñ' sounds like the 'ny' in 'canyon'."},
		{"j", "Spanish 'j' is a raspy 'h' from the back of the throat."},
		{"ll", "'ll' usually sounds like the 'y' in 'yes'."},
		{"h", "The Spanish 'h' is always silent."},
	},
	"de": {
		{"ch", "German 'ch' is a soft hiss from the back of the mouth, like in 'Bach'."},
		{"ü", "'ü': say 'ee' and round your lips as if saying 'oo'."},
		{"ö", "'ö': say 'eh' with rounded lips."},
		{"ei", "'ei' sounds like the English word 'eye'."},
		{"z", "German 'z' sounds like 'ts' in 'cats'."},
	},
	"it": {
		{"gli", "'gli' sounds like the 'lli' in 'million', tongue against the palate."},
		{"gn", "'gn' sounds like the 'ny' in 'canyon'."},
		{"cc", "Double consonants are held longer: pause briefly on the 'cc'."},
		{"r", "The Italian 'r' is lightly trilled with the tongue tip."},
	},
	"ja": {
		{"r", "Japanese 'r' is between an 'r' and an 'l', a quick tap of the tongue."},
		{"tsu", "'tsu' starts with a crisp 'ts' like the end of 'cats'."},
		{"fu", "'fu' is softer than an English 'f', blow gently between the lips."},
	},
}

// genericHints apply when no language-specific pattern matches.
var genericHints = []string{
	"Listen to the word again and repeat it slowly, syllable by syllable.",
	"Focus on matching the vowel sounds first, then the consonants.",
}

// suggestionsFor returns coaching tips for a cleaned expected word, at most
// two language-specific hints, falling back to the generic pair.
func suggestionsFor(language, word string) []string {
	if word == "" {
		return nil
	}
	var out []string
	for _, h := range phonemeHints[language] {
		if strings.Contains(word, h.pattern) {
			out = append(out, h.tip)
			if len(out) == 2 {
				return out
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	return append([]string(nil), genericHints...)
}
