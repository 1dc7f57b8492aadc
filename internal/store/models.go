package store

import "time"

// Account identifies the source that contributed a raw contact. Raw
// contacts with a nil account are local-only and are never purged by
// account reconciliation.
type Account struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Equal reports whether two accounts refer to the same source.
func (a Account) Equal(b Account) bool {
	return a.Name == b.Name && a.Type == b.Type
}

// AggregationMode controls how a raw contact participates in automatic
// aggregation.
type AggregationMode int

const (
	AggregationDefault AggregationMode = iota
	AggregationImmediate
	AggregationSuspended
	AggregationDisabled
)

// RawContact is one account's record of a person.
type RawContact struct {
	ID       int64    `json:"id"`
	Account  *Account `json:"account,omitempty"`
	SourceID string   `json:"source_id,omitempty"`

	Deleted bool  `json:"deleted,omitempty"`
	Dirty   bool  `json:"dirty,omitempty"`
	Version int64 `json:"version"`

	Starred bool `json:"starred"`
	// StarredDirectly records that the star came from an explicit write
	// rather than a favorites-group membership, so removing the last
	// membership does not clear it.
	StarredDirectly bool `json:"starred_directly,omitempty"`

	AggregationMode AggregationMode `json:"aggregation_mode"`

	TimesContacted    int64     `json:"times_contacted"`
	LastTimeContacted time.Time `json:"last_time_contacted"`

	CustomRingtone  string `json:"custom_ringtone,omitempty"`
	SendToVoicemail bool   `json:"send_to_voicemail"`
	ReadOnly        bool   `json:"read_only,omitempty"`

	// NameDataRowID points at the data row elected as this raw contact's
	// display-name source, 0 when it has none.
	NameDataRowID int64 `json:"name_data_row_id,omitempty"`

	// ContactID is 0 while the raw contact is unaggregated.
	ContactID int64 `json:"contact_id"`
}

// NameSource ranks where a display name came from. Higher wins.
type NameSource int

const (
	NameSourceNone NameSource = iota
	NameSourceEmail
	NameSourcePhone
	NameSourceOrganization
	NameSourceNickname
	NameSourceStructuredName
)

// PhoneticStyle classifies a phonetic name for sort-key generation.
type PhoneticStyle int

const (
	PhoneticStyleUndefined PhoneticStyle = iota
	PhoneticStyleGeneric
	PhoneticStyleJapanese
	PhoneticStyleChinese
)

// Contact is the aggregated logical person. It is a materialized view:
// every field is recomputable from member raw contacts and their data
// rows.
type Contact struct {
	ID int64 `json:"id"`

	NameRawContactID       int64         `json:"name_raw_contact_id,omitempty"`
	DisplayNamePrimary     string        `json:"display_name_primary"`
	DisplayNameAlternative string        `json:"display_name_alternative,omitempty"`
	DisplayNameSource      NameSource    `json:"display_name_source"`
	PhoneticName           string        `json:"phonetic_name,omitempty"`
	PhoneticNameStyle      PhoneticStyle `json:"phonetic_name_style,omitempty"`
	SortKeyPrimary         string        `json:"sort_key_primary,omitempty"`
	SortKeyAlternative     string        `json:"sort_key_alternative,omitempty"`

	PhotoDataRowID int64  `json:"photo_data_row_id,omitempty"`
	PhotoFileID    string `json:"photo_file_id,omitempty"`
	PhotoThumbnail []byte `json:"photo_thumbnail,omitempty"`

	CustomRingtone  string `json:"custom_ringtone,omitempty"`
	SendToVoicemail bool   `json:"send_to_voicemail"`

	Starred           bool      `json:"starred"`
	TimesContacted    int64     `json:"times_contacted"`
	LastTimeContacted time.Time `json:"last_time_contacted"`

	Presence *ContactPresence `json:"presence,omitempty"`
}

// ContactPresence is the folded presence summary cached on a contact.
type ContactPresence struct {
	State           PresenceState `json:"state"`
	StatusText      string        `json:"status_text,omitempty"`
	StatusTimestamp time.Time     `json:"status_timestamp"`
}

// ExceptionType is the directive carried by an aggregation exception.
type ExceptionType int

const (
	KeepTogether ExceptionType = iota + 1
	KeepSeparate
)

// AggregationException forces or forbids aggregation of a raw-contact
// pair. The pair is stored in canonical order (lower id first).
type AggregationException struct {
	Type          ExceptionType
	RawContactID1 int64
	RawContactID2 int64
}

// Canonicalize orders the pair so equal pairs compare equal.
func (e *AggregationException) Canonicalize() {
	if e.RawContactID1 > e.RawContactID2 {
		e.RawContactID1, e.RawContactID2 = e.RawContactID2, e.RawContactID1
	}
}

// Other returns the partner of id in the pair, or 0 when id is not part
// of the exception.
func (e *AggregationException) Other(id int64) int64 {
	switch id {
	case e.RawContactID1:
		return e.RawContactID2
	case e.RawContactID2:
		return e.RawContactID1
	}
	return 0
}

// PhoneLookupEntry maps a normalized phone key to its source data row.
// MinMatch entries carry only the trailing digits and match fuzzily
// across countries.
type PhoneLookupEntry struct {
	DataRowID    int64
	RawContactID int64
	Key          string
	MinMatch     bool
}

// EmailLookupEntry maps a lowercased address to its source data row.
type EmailLookupEntry struct {
	DataRowID    int64
	RawContactID int64
	Address      string
}

// NameLookupEntry maps a normalized full-name key to a raw contact, used
// for exact-name aggregation matching.
type NameLookupEntry struct {
	DataRowID    int64
	RawContactID int64
	Key          string
}

// PresenceState enumerates availability in ascending rank; aggregation
// picks the numerically highest state among member rows.
type PresenceState int

const (
	PresenceOffline PresenceState = iota
	PresenceInvisible
	PresenceAway
	PresenceIdle
	PresenceDoNotDisturb
	PresenceAvailable
)

// PresenceRow is the last known presence for one IM/email data row.
type PresenceRow struct {
	ID              int64         `json:"id"`
	DataRowID       int64         `json:"data_row_id,omitempty"`
	RawContactID    int64         `json:"raw_contact_id,omitempty"`
	Protocol        string        `json:"protocol,omitempty"`
	CustomProtocol  string        `json:"custom_protocol,omitempty"`
	Handle          string        `json:"handle"`
	State           PresenceState `json:"state"`
	StatusText      string        `json:"status_text,omitempty"`
	StatusTimestamp time.Time     `json:"status_timestamp"`
}

// UsageType tags usage feedback by interaction kind.
type UsageType int

const (
	UsageCall UsageType = iota
	UsageLongText
	UsageShortText
)

// DataUsageStat is a time-bucketed usage counter for one data row.
// Feedback lands in the recent bucket; aging moves counts into the older
// buckets so ranking decays without rewriting history on every read.
type DataUsageStat struct {
	DataRowID int64
	Type      UsageType
	Recent    int64
	Medium    int64
	Old       int64
	LastUsed  time.Time
}

// PhotoRecord is a content-store entry holding both encodings of one
// photo. Liveness is derived by GC from referencing rows; there is no
// refcount column.
type PhotoRecord struct {
	FileID    string
	Thumbnail []byte
	Display   []byte
	CreatedAt time.Time
}

// Group is an account-scoped label. Favorites groups drive the starred
// flag; auto-add groups receive a membership for every raw contact
// inserted into their account.
type Group struct {
	ID        int64    `json:"id"`
	Account   *Account `json:"account,omitempty"`
	Title     string   `json:"title"`
	AutoAdd   bool     `json:"auto_add,omitempty"`
	Favorites bool     `json:"favorites,omitempty"`
}

// StreamItem is an append-only social-stream record under a raw contact.
type StreamItem struct {
	ID           int64     `json:"id"`
	RawContactID int64     `json:"raw_contact_id"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

// StreamItemPhoto attaches a stored photo to a stream item. Its file id
// participates in photo GC liveness.
type StreamItemPhoto struct {
	ID           int64
	StreamItemID int64
	PhotoFileID  string
}
