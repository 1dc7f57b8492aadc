package normalize

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jw6ventures/contactd/internal/store"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldText lowercases and strips diacritics so "José" compares and sorts
// as "jose".
func FoldText(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// SortKeys derives the primary and alternative sort keys for a display
// name. A phonetic name wins over the display name when present; Han
// text without a phonetic reading is expanded to pinyin syllables so
// ideographic names sort stably in a latin collation.
func SortKeys(d DisplayName) (primary, alternative string) {
	switch d.PhoneticStyle {
	case store.PhoneticStyleJapanese, store.PhoneticStyleChinese, store.PhoneticStyleGeneric:
		if d.PhoneticName != "" {
			key := expandHan(d.PhoneticName)
			return key, key
		}
	}
	return expandHan(d.Primary), expandHan(d.Alternative)
}

var pinyinArgs = pinyin.NewArgs()

// expandHan rewrites each Han rune as "PINYIN 字" so the key is readable
// in a latin sort yet still distinguishes homophones; non-Han text is
// folded in place.
func expandHan(s string) string {
	if !containsHan(s) {
		return FoldText(s)
	}
	var tokens []string
	var latin strings.Builder
	flush := func() {
		if latin.Len() > 0 {
			tokens = append(tokens, FoldText(latin.String()))
			latin.Reset()
		}
	}
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			flush()
			if syllables := pinyin.SinglePinyin(r, pinyinArgs); len(syllables) > 0 {
				tokens = append(tokens, syllables[0]+" "+string(r))
			} else {
				tokens = append(tokens, string(r))
			}
			continue
		}
		if unicode.IsSpace(r) {
			flush()
			continue
		}
		latin.WriteRune(r)
	}
	flush()
	return strings.Join(tokens, " ")
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
