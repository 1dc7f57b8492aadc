package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/contactd/internal/store"
)

func structuredNameRow(id int64, given, middle, family string) *store.DataRow {
	return &store.DataRow{
		ID:   id,
		Kind: store.KindStructuredName,
		StructuredName: &store.StructuredName{
			GivenName:  given,
			MiddleName: middle,
			FamilyName: family,
		},
	}
}

func TestDeriveDisplayNamePrecedence(t *testing.T) {
	rows := []*store.DataRow{
		{ID: 1, Kind: store.KindEmail, Email: &store.Email{Address: "jd@example.com"}},
		{ID: 2, Kind: store.KindPhone, Phone: &store.Phone{Number: "555-0100"}},
		{ID: 3, Kind: store.KindOrganization, Organization: &store.Organization{Company: "Acme"}},
		{ID: 4, Kind: store.KindNickname, Nickname: &store.Nickname{Name: "JD"}},
		structuredNameRow(5, "John", "", "Doe"),
	}

	d := DeriveDisplayName(rows)
	require.Equal(t, store.NameSourceStructuredName, d.Source)
	assert.Equal(t, int64(5), d.SourceRowID)
	assert.Equal(t, "John Doe", d.Primary)
	assert.Equal(t, "Doe, John", d.Alternative)
}

func TestDeriveDisplayNameFallsThroughEmptySources(t *testing.T) {
	rows := []*store.DataRow{
		{ID: 1, Kind: store.KindStructuredName, StructuredName: &store.StructuredName{}},
		{ID: 2, Kind: store.KindNickname, Nickname: &store.Nickname{Name: "  "}},
		{ID: 3, Kind: store.KindOrganization, Organization: &store.Organization{Title: "Engineer"}},
	}

	d := DeriveDisplayName(rows)
	assert.Equal(t, store.NameSourceOrganization, d.Source)
	assert.Equal(t, "Engineer", d.Primary)
}

func TestDeriveDisplayNamePhoneBeforeEmail(t *testing.T) {
	rows := []*store.DataRow{
		{ID: 1, Kind: store.KindEmail, Email: &store.Email{Address: "jd@example.com"}},
		{ID: 2, Kind: store.KindPhone, Phone: &store.Phone{Number: "555-0100"}},
	}

	d := DeriveDisplayName(rows)
	assert.Equal(t, store.NameSourcePhone, d.Source)
	assert.Equal(t, "555-0100", d.Primary)
}

func TestDeriveDisplayNamePrimaryFlagBreaksTies(t *testing.T) {
	rows := []*store.DataRow{
		structuredNameRow(1, "First", "", "Entry"),
		structuredNameRow(2, "Second", "", "Entry"),
	}
	rows[1].IsPrimary = true

	d := DeriveDisplayName(rows)
	assert.Equal(t, int64(2), d.SourceRowID)
	assert.Equal(t, "Second Entry", d.Primary)
}

func TestDeriveDisplayNameAlternativeWithMiddle(t *testing.T) {
	d := DeriveDisplayName([]*store.DataRow{structuredNameRow(1, "John", "Paul", "Doe")})
	assert.Equal(t, "John Paul Doe", d.Primary)
	assert.Equal(t, "Doe, John Paul", d.Alternative)
}

func TestDeriveDisplayNameExplicitDisplayNameWins(t *testing.T) {
	d := DeriveDisplayName([]*store.DataRow{{
		ID:   1,
		Kind: store.KindStructuredName,
		StructuredName: &store.StructuredName{
			DisplayName: "Dr. John Doe Jr.",
			GivenName:   "John",
			FamilyName:  "Doe",
		},
	}})
	assert.Equal(t, "Dr. John Doe Jr.", d.Primary)
	assert.Equal(t, "Doe, John", d.Alternative)
}

func TestGuessPhoneticStyle(t *testing.T) {
	assert.Equal(t, store.PhoneticStyleJapanese, GuessPhoneticStyle("やまだ たろう"))
	assert.Equal(t, store.PhoneticStyleJapanese, GuessPhoneticStyle("ヤマダ"))
	assert.Equal(t, store.PhoneticStyleChinese, GuessPhoneticStyle("张三"))
	assert.Equal(t, store.PhoneticStyleGeneric, GuessPhoneticStyle("Yamada"))
	assert.Equal(t, store.PhoneticStyleUndefined, GuessPhoneticStyle("  "))
}

func TestNameMatchKeyOrderInsensitive(t *testing.T) {
	assert.Equal(t, NameMatchKey("John Doe"), NameMatchKey("Doe, John"))
	assert.Equal(t, "doe john", NameMatchKey("John   Doe"))
	assert.Empty(t, NameMatchKey("  ...  "))
}

func TestNameMatchKeyFoldsDiacritics(t *testing.T) {
	assert.Equal(t, NameMatchKey("Jose Garcia"), NameMatchKey("José García"))
}

func TestFoldText(t *testing.T) {
	assert.Equal(t, "jose", FoldText("José"))
	assert.Equal(t, "uber", FoldText("Über"))
	assert.Equal(t, "plain", FoldText("plain"))
}
