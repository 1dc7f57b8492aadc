package normalize

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// PhoneForms are the derived representations of one phone number used as
// lookup keys, in decreasing match strength.
type PhoneForms struct {
	// E164 is the fully qualified international form ("+16508610000"),
	// empty when the number cannot be parsed.
	E164 string
	// National is the national significant number without formatting
	// ("6508610000"). For unparseable input it degrades to the bare
	// digit string.
	National string
	// MinMatch is the trailing-digit suffix used for fuzzy cross-country
	// matching.
	MinMatch string
}

// PhoneNormalizer derives lookup keys from raw phone numbers. It never
// fails: garbage input degrades to a digits-only form usable for
// min-match lookups only.
type PhoneNormalizer struct {
	region         string
	minMatchDigits int
}

// NewPhoneNormalizer returns a normalizer using the given default region
// ("US", "JP", ...) for numbers written without a country code.
// minMatchDigits below 7 or above 9 is clamped.
func NewPhoneNormalizer(region string, minMatchDigits int) *PhoneNormalizer {
	if region == "" {
		region = "US"
	}
	if minMatchDigits < 7 {
		minMatchDigits = 7
	}
	if minMatchDigits > 9 {
		minMatchDigits = 9
	}
	return &PhoneNormalizer{region: region, minMatchDigits: minMatchDigits}
}

// Normalize derives all lookup forms for a raw number.
func (n *PhoneNormalizer) Normalize(raw string) PhoneForms {
	var forms PhoneForms
	digits := digitsOf(raw)
	if digits == "" {
		return forms
	}

	if num, err := phonenumbers.Parse(raw, n.region); err == nil {
		forms.E164 = phonenumbers.Format(num, phonenumbers.E164)
		forms.National = phonenumbers.GetNationalSignificantNumber(num)
	} else {
		forms.National = strings.TrimLeft(digits, "0")
		if forms.National == "" {
			forms.National = digits
		}
	}

	base := forms.National
	if base == "" {
		base = digits
	}
	if len(base) > n.minMatchDigits {
		forms.MinMatch = base[len(base)-n.minMatchDigits:]
	} else {
		forms.MinMatch = base
	}
	return forms
}

// Keys returns the distinct non-empty strong keys (E164 and national) for
// index maintenance.
func (f PhoneForms) Keys() []string {
	var keys []string
	if f.E164 != "" {
		keys = append(keys, f.E164)
	}
	if f.National != "" && f.National != f.E164 {
		keys = append(keys, f.National)
	}
	return keys
}

func digitsOf(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
