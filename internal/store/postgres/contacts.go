package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/contactd/internal/store"
)

const contactCols = `id, name_raw_contact_id, display_name_primary, display_name_alternative,
display_name_source, phonetic_name, phonetic_name_style, sort_key_primary, sort_key_alternative,
photo_data_row_id, photo_file_id, photo_thumbnail, custom_ringtone, send_to_voicemail,
starred, times_contacted, last_time_contacted, presence_state, presence_status_text, presence_status_ts`

func (t *pgTx) InsertContact(ctx context.Context, c *store.Contact) (int64, error) {
	state, text, ts := presenceCols(c.Presence)
	const q = `INSERT INTO contacts (
        name_raw_contact_id, display_name_primary, display_name_alternative,
        display_name_source, phonetic_name, phonetic_name_style, sort_key_primary, sort_key_alternative,
        photo_data_row_id, photo_file_id, photo_thumbnail, custom_ringtone, send_to_voicemail,
        starred, times_contacted, last_time_contacted, presence_state, presence_status_text, presence_status_ts
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id`
	err := t.tx.QueryRow(ctx, q,
		c.NameRawContactID, c.DisplayNamePrimary, c.DisplayNameAlternative,
		c.DisplayNameSource, c.PhoneticName, c.PhoneticNameStyle, c.SortKeyPrimary, c.SortKeyAlternative,
		c.PhotoDataRowID, c.PhotoFileID, c.PhotoThumbnail, c.CustomRingtone, c.SendToVoicemail,
		c.Starred, c.TimesContacted, nullTime(c.LastTimeContacted), state, text, ts,
	).Scan(&c.ID)
	return c.ID, mapErr(err)
}

func (t *pgTx) GetContact(ctx context.Context, id int64) (*store.Contact, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+contactCols+` FROM contacts WHERE id=$1`, id)
	return scanContact(row)
}

func (t *pgTx) UpdateContact(ctx context.Context, c *store.Contact) error {
	state, text, ts := presenceCols(c.Presence)
	const q = `UPDATE contacts SET
        name_raw_contact_id=$2, display_name_primary=$3, display_name_alternative=$4,
        display_name_source=$5, phonetic_name=$6, phonetic_name_style=$7, sort_key_primary=$8, sort_key_alternative=$9,
        photo_data_row_id=$10, photo_file_id=$11, photo_thumbnail=$12, custom_ringtone=$13, send_to_voicemail=$14,
        starred=$15, times_contacted=$16, last_time_contacted=$17, presence_state=$18, presence_status_text=$19, presence_status_ts=$20
WHERE id=$1`
	tag, err := t.tx.Exec(ctx, q,
		c.ID, c.NameRawContactID, c.DisplayNamePrimary, c.DisplayNameAlternative,
		c.DisplayNameSource, c.PhoneticName, c.PhoneticNameStyle, c.SortKeyPrimary, c.SortKeyAlternative,
		c.PhotoDataRowID, c.PhotoFileID, c.PhotoThumbnail, c.CustomRingtone, c.SendToVoicemail,
		c.Starred, c.TimesContacted, nullTime(c.LastTimeContacted), state, text, ts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteContact(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func presenceCols(p *store.ContactPresence) (state *int, text *string, ts *time.Time) {
	if p == nil {
		return nil, nil, nil
	}
	s := int(p.State)
	return &s, &p.StatusText, nullTime(p.StatusTimestamp)
}

func scanContact(row pgx.Row) (*store.Contact, error) {
	var (
		c     store.Contact
		last  *time.Time
		state *int
		text  *string
		ts    *time.Time
	)
	err := row.Scan(&c.ID, &c.NameRawContactID, &c.DisplayNamePrimary, &c.DisplayNameAlternative,
		&c.DisplayNameSource, &c.PhoneticName, &c.PhoneticNameStyle, &c.SortKeyPrimary, &c.SortKeyAlternative,
		&c.PhotoDataRowID, &c.PhotoFileID, &c.PhotoThumbnail, &c.CustomRingtone, &c.SendToVoicemail,
		&c.Starred, &c.TimesContacted, &last, &state, &text, &ts)
	if err != nil {
		return nil, mapErr(err)
	}
	c.LastTimeContacted = fromNullTime(last)
	if state != nil {
		c.Presence = &store.ContactPresence{
			State:           store.PresenceState(*state),
			StatusTimestamp: fromNullTime(ts),
		}
		if text != nil {
			c.Presence.StatusText = *text
		}
	}
	return &c, nil
}
