package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jw6ventures/contactd/internal/store"
)

// DisplayName is the derived naming summary for one raw contact.
type DisplayName struct {
	Source        store.NameSource
	SourceRowID   int64
	Primary       string
	Alternative   string
	PhoneticName  string
	PhoneticStyle store.PhoneticStyle
}

// DeriveDisplayName elects the best name among a raw contact's data rows.
// Precedence: structured name > nickname > organization (company, else
// title) > phone > email. Among rows of equal precedence an is-primary
// row wins, then the lowest row id.
func DeriveDisplayName(rows []*store.DataRow) DisplayName {
	best := DisplayName{}
	for _, row := range pickByPrecedence(rows) {
		switch row.Kind {
		case store.KindStructuredName:
			d := fromStructuredName(row.StructuredName)
			if d.Primary != "" || d.PhoneticName != "" {
				d.Source = store.NameSourceStructuredName
				d.SourceRowID = row.ID
				return d
			}
		case store.KindNickname:
			if n := strings.TrimSpace(row.Nickname.Name); n != "" {
				return DisplayName{Source: store.NameSourceNickname, SourceRowID: row.ID, Primary: n, Alternative: n}
			}
		case store.KindOrganization:
			name := strings.TrimSpace(row.Organization.Company)
			if name == "" {
				name = strings.TrimSpace(row.Organization.Title)
			}
			if name != "" {
				d := DisplayName{Source: store.NameSourceOrganization, SourceRowID: row.ID, Primary: name, Alternative: name}
				if p := strings.TrimSpace(row.Organization.PhoneticName); p != "" {
					d.PhoneticName = p
					d.PhoneticStyle = GuessPhoneticStyle(p)
				}
				return d
			}
		case store.KindPhone:
			if n := strings.TrimSpace(row.Phone.Number); n != "" {
				return DisplayName{Source: store.NameSourcePhone, SourceRowID: row.ID, Primary: n, Alternative: n}
			}
		case store.KindEmail:
			if a := strings.TrimSpace(row.Email.Address); a != "" {
				return DisplayName{Source: store.NameSourceEmail, SourceRowID: row.ID, Primary: a, Alternative: a}
			}
		}
	}
	return best
}

// pickByPrecedence orders candidate rows best-first.
func pickByPrecedence(rows []*store.DataRow) []*store.DataRow {
	rank := func(k store.DataKind) int {
		switch k {
		case store.KindStructuredName:
			return 0
		case store.KindNickname:
			return 1
		case store.KindOrganization:
			return 2
		case store.KindPhone:
			return 3
		case store.KindEmail:
			return 4
		}
		return 5
	}
	out := make([]*store.DataRow, 0, len(rows))
	for _, r := range rows {
		if rank(r.Kind) < 5 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Kind), rank(out[j].Kind)
		if ri != rj {
			return ri < rj
		}
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func fromStructuredName(sn *store.StructuredName) DisplayName {
	d := DisplayName{}

	given := strings.TrimSpace(sn.GivenName)
	middle := strings.TrimSpace(sn.MiddleName)
	family := strings.TrimSpace(sn.FamilyName)

	if dn := strings.TrimSpace(sn.DisplayName); dn != "" {
		d.Primary = dn
	} else {
		d.Primary = joinNonEmpty(" ", strings.TrimSpace(sn.Prefix), given, middle, family, strings.TrimSpace(sn.Suffix))
	}

	// Alternative form swaps family and given order: "Doe, John Paul".
	if family != "" && given != "" {
		d.Alternative = family + ", " + joinNonEmpty(" ", given, middle)
	} else {
		d.Alternative = d.Primary
	}

	phonetic := joinNonEmpty(" ",
		strings.TrimSpace(sn.PhoneticFamilyName),
		strings.TrimSpace(sn.PhoneticMiddleName),
		strings.TrimSpace(sn.PhoneticGivenName))
	if phonetic != "" {
		d.PhoneticName = phonetic
		d.PhoneticStyle = GuessPhoneticStyle(phonetic)
	}
	return d
}

// GuessPhoneticStyle classifies a phonetic name by script: kana means
// Japanese, Han means Chinese, anything else non-empty is generic.
func GuessPhoneticStyle(text string) store.PhoneticStyle {
	if strings.TrimSpace(text) == "" {
		return store.PhoneticStyleUndefined
	}
	for _, r := range text {
		if unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return store.PhoneticStyleJapanese
		}
	}
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return store.PhoneticStyleChinese
		}
	}
	return store.PhoneticStyleGeneric
}

// NameMatchKey produces the normalized exact-full-name key used for
// aggregation matching: folded, diacritic-stripped tokens in sorted
// order, so "John Doe" and "Doe, John" collide.
func NameMatchKey(name string) string {
	folded := FoldText(name)
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
