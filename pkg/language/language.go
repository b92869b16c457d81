// Package language holds the Arabic/English text utilities shared by the
// pipeline: language detection, Arabic normalization and the translation
// contract fulfilled by the LLM client.
package language

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Lang is a detected message language.
type Lang string

const (
	Arabic  Lang = "ar"
	English Lang = "en"
)

// Translator is implemented by the LLM client. Used only when classifying
// English text that arrives without history, and when rephrasing canned
// replies.
type Translator interface {
	TranslateTo(ctx context.Context, text string, target Lang) (string, error)
}

// Detect classifies text as Arabic or English by counting Arabic-range
// codepoints against Latin letters. Ties go to Arabic.
func Detect(text string) Lang {
	var arabic, latin int
	for _, r := range text {
		switch {
		case isArabicRune(r):
			arabic++
		case unicode.IsLetter(r) && r < 0x024F:
			latin++
		}
	}
	if latin > arabic {
		return English
	}
	return Arabic
}

func isArabicRune(r rune) bool {
	return (r >= 0x0600 && r <= 0x06FF) ||
		(r >= 0x0750 && r <= 0x077F) ||
		(r >= 0x08A0 && r <= 0x08FF) ||
		(r >= 0xFB50 && r <= 0xFDFF) ||
		(r >= 0xFE70 && r <= 0xFEFF)
}

// NormalizeArabic folds Arabic text to its canonical search form. Applied
// before embedding, before every similarity search, when comparing
// district/city/brand names and when deduplicating knowledge questions.
// Idempotent: NormalizeArabic(NormalizeArabic(s)) == NormalizeArabic(s).
func NormalizeArabic(text string) string {
	text = norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case isDiacritic(r):
			// dropped
		case r == 'أ' || r == 'إ' || r == 'آ':
			b.WriteRune('ا')
		case r == 'ى' || r == 'ئ':
			b.WriteRune('ي')
		case r == 'ؤ':
			b.WriteRune('و')
		case r == 'ة':
			b.WriteRune('ه')
		case r == 'ء':
			// lone hamza dropped
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isDiacritic(r rune) bool {
	return (r >= 0x064B && r <= 0x065F) ||
		r == 0x0670 ||
		(r >= 0x06D6 && r <= 0x06ED)
}

// waterPrefixes are the Arabic "water" words stripped from the front of
// brand titles on ingest.
var waterPrefixes = []string{"مياه", "موية", "مياة", "ميه"}

// NormalizeBrandTitle strips the leading Arabic water prefixes and a
// leading/trailing English "Water", then folds the remainder with
// NormalizeArabic.
func NormalizeBrandTitle(title string) string {
	t := strings.TrimSpace(title)
	for _, p := range waterPrefixes {
		if strings.HasPrefix(t, p) {
			t = strings.TrimSpace(strings.TrimPrefix(t, p))
			break
		}
	}
	if rest, ok := strings.CutPrefix(t, "Water "); ok {
		t = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutSuffix(t, " Water"); ok {
		t = strings.TrimSpace(rest)
	}
	return NormalizeArabic(t)
}
