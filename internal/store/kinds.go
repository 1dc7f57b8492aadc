package store

import (
	"encoding/json"
	"fmt"
)

// DataKind identifies the payload variant of a data row. The set is
// closed: rows with an unrecognized kind are rejected at insert time.
type DataKind int

const (
	KindUnknown DataKind = iota
	KindStructuredName
	KindNickname
	KindOrganization
	KindPhone
	KindEmail
	KindIm
	KindPhoto
	KindNote
	KindPostalAddress
	KindGroupMembership
)

var kindNames = map[DataKind]string{
	KindStructuredName:  "structured_name",
	KindNickname:        "nickname",
	KindOrganization:    "organization",
	KindPhone:           "phone",
	KindEmail:           "email",
	KindIm:              "im",
	KindPhoto:           "photo",
	KindNote:            "note",
	KindPostalAddress:   "postal_address",
	KindGroupMembership: "group_membership",
}

func (k DataKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseDataKind maps a wire name to its kind, returning KindUnknown for
// anything outside the closed set.
func ParseDataKind(s string) DataKind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// DataRow is one typed attribute under a raw contact. Exactly one payload
// field matching Kind is set; election and normalization logic type-switch
// over Payload().
type DataRow struct {
	ID           int64    `json:"-"`
	RawContactID int64    `json:"-"`
	Kind         DataKind `json:"-"`

	IsPrimary      bool `json:"-"`
	IsSuperPrimary bool `json:"-"`
	IsReadOnly     bool `json:"-"`

	StructuredName  *StructuredName  `json:"structured_name,omitempty"`
	Nickname        *Nickname        `json:"nickname,omitempty"`
	Organization    *Organization    `json:"organization,omitempty"`
	Phone           *Phone           `json:"phone,omitempty"`
	Email           *Email           `json:"email,omitempty"`
	Im              *Im              `json:"im,omitempty"`
	Photo           *Photo           `json:"photo,omitempty"`
	Note            *Note            `json:"note,omitempty"`
	PostalAddress   *PostalAddress   `json:"postal_address,omitempty"`
	GroupMembership *GroupMembership `json:"group_membership,omitempty"`
}

// StructuredName carries the parsed pieces of a person's name.
type StructuredName struct {
	DisplayName        string `json:"display_name,omitempty"`
	GivenName          string `json:"given_name,omitempty"`
	MiddleName         string `json:"middle_name,omitempty"`
	FamilyName         string `json:"family_name,omitempty"`
	Prefix             string `json:"prefix,omitempty"`
	Suffix             string `json:"suffix,omitempty"`
	PhoneticGivenName  string `json:"phonetic_given_name,omitempty"`
	PhoneticMiddleName string `json:"phonetic_middle_name,omitempty"`
	PhoneticFamilyName string `json:"phonetic_family_name,omitempty"`
}

type Nickname struct {
	Name string `json:"name,omitempty"`
}

type Organization struct {
	Company      string `json:"company,omitempty"`
	Title        string `json:"title,omitempty"`
	PhoneticName string `json:"phonetic_name,omitempty"`
}

type Phone struct {
	Number string `json:"number,omitempty"`
	Type   string `json:"type,omitempty"`
	Label  string `json:"label,omitempty"`
}

type Email struct {
	Address string `json:"address,omitempty"`
	Type    string `json:"type,omitempty"`
	Label   string `json:"label,omitempty"`
}

type Im struct {
	Protocol       string `json:"protocol,omitempty"`
	CustomProtocol string `json:"custom_protocol,omitempty"`
	Handle         string `json:"handle,omitempty"`
	Type           string `json:"type,omitempty"`
}

// Photo holds the per-row thumbnail blob plus a reference into the photo
// store for the display-size encoding.
type Photo struct {
	FileID    string `json:"file_id,omitempty"`
	Thumbnail []byte `json:"thumbnail,omitempty"`
}

type Note struct {
	Text string `json:"text,omitempty"`
}

type PostalAddress struct {
	Formatted string `json:"formatted,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
}

type GroupMembership struct {
	GroupID int64 `json:"group_id"`
}

// Payload returns the variant matching Kind, or nil when the row is
// malformed.
func (d *DataRow) Payload() any {
	switch d.Kind {
	case KindStructuredName:
		if d.StructuredName != nil {
			return d.StructuredName
		}
	case KindNickname:
		if d.Nickname != nil {
			return d.Nickname
		}
	case KindOrganization:
		if d.Organization != nil {
			return d.Organization
		}
	case KindPhone:
		if d.Phone != nil {
			return d.Phone
		}
	case KindEmail:
		if d.Email != nil {
			return d.Email
		}
	case KindIm:
		if d.Im != nil {
			return d.Im
		}
	case KindPhoto:
		if d.Photo != nil {
			return d.Photo
		}
	case KindNote:
		if d.Note != nil {
			return d.Note
		}
	case KindPostalAddress:
		if d.PostalAddress != nil {
			return d.PostalAddress
		}
	case KindGroupMembership:
		if d.GroupMembership != nil {
			return d.GroupMembership
		}
	}
	return nil
}

// Validate checks that Kind belongs to the closed set and that the
// matching payload is present.
func (d *DataRow) Validate() error {
	if _, ok := kindNames[d.Kind]; !ok {
		return fmt.Errorf("data row kind %s: %w", d.Kind, ErrUnknownKind)
	}
	if d.Payload() == nil {
		return fmt.Errorf("data row kind %s has no payload: %w", d.Kind, ErrUnknownKind)
	}
	return nil
}

// MarshalPayload serializes only the payload variant, for storage in a
// single jsonb column.
func (d *DataRow) MarshalPayload() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalPayload restores the payload variant from its jsonb form.
func (d *DataRow) UnmarshalPayload(raw []byte) error {
	return json.Unmarshal(raw, d)
}

// Clone returns a deep copy so callers can mutate without aliasing rows
// held by the in-memory store.
func (d *DataRow) Clone() *DataRow {
	c := *d
	if d.StructuredName != nil {
		v := *d.StructuredName
		c.StructuredName = &v
	}
	if d.Nickname != nil {
		v := *d.Nickname
		c.Nickname = &v
	}
	if d.Organization != nil {
		v := *d.Organization
		c.Organization = &v
	}
	if d.Phone != nil {
		v := *d.Phone
		c.Phone = &v
	}
	if d.Email != nil {
		v := *d.Email
		c.Email = &v
	}
	if d.Im != nil {
		v := *d.Im
		c.Im = &v
	}
	if d.Photo != nil {
		v := *d.Photo
		v.Thumbnail = append([]byte(nil), d.Photo.Thumbnail...)
		c.Photo = &v
	}
	if d.Note != nil {
		v := *d.Note
		c.Note = &v
	}
	if d.PostalAddress != nil {
		v := *d.PostalAddress
		c.PostalAddress = &v
	}
	if d.GroupMembership != nil {
		v := *d.GroupMembership
		c.GroupMembership = &v
	}
	return &c
}
