package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/engine"
	"github.com/jw6ventures/contactd/internal/photo"
	"github.com/jw6ventures/contactd/internal/store"
)

// maxPhotoUpload bounds raw photo request bodies.
const maxPhotoUpload = 16 << 20

// Handlers exposes the aggregation engine over a JSON API.
type Handlers struct {
	engine *engine.Engine
	photos *photo.Service
	queue  *photo.Queue
	logger *zap.Logger
}

func NewHandlers(eng *engine.Engine, photos *photo.Service, queue *photo.Queue, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{engine: eng, photos: photos, queue: queue, logger: logger}
}

// writeOpts reads the privileged-caller flag. Sync adapters mark their
// writes so they bypass read-only protection and skip the dirty flag.
func writeOpts(r *http.Request) engine.WriteOptions {
	v := r.URL.Query().Get("caller_is_syncadapter")
	return engine.WriteOptions{CallerIsSyncAdapter: v == "true" || v == "1"}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, engine.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, photo.ErrQueueFull):
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", engine.ErrValidation, name)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}
	return nil
}

// Raw contacts.

func (h *Handlers) UpsertRawContact(w http.ResponseWriter, r *http.Request) {
	var rc store.RawContact
	if err := decodeBody(r, &rc); err != nil {
		h.writeError(w, err)
		return
	}
	inserting := rc.ID == 0
	out, err := h.engine.UpsertRawContact(r.Context(), &rc, writeOpts(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusOK
	if inserting {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, out)
}

func (h *Handlers) GetRawContact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	rc, err := h.engine.GetRawContact(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rc)
}

func (h *Handlers) DeleteRawContact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.DeleteRawContact(r.Context(), id, writeOpts(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) SetRawContactStarred(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		Starred bool `json:"starred"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.SetRawContactStarred(r.Context(), id, body.Starred, writeOpts(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// Data rows.

type dataRowMeta struct {
	ID             int64  `json:"id"`
	RawContactID   int64  `json:"raw_contact_id"`
	Kind           string `json:"kind"`
	IsPrimary      bool   `json:"is_primary"`
	IsSuperPrimary bool   `json:"is_super_primary"`
	IsReadOnly     bool   `json:"is_read_only"`
}

type dataRowResponse struct {
	ID             int64  `json:"id"`
	RawContactID   int64  `json:"raw_contact_id"`
	Kind           string `json:"kind"`
	IsPrimary      bool   `json:"is_primary,omitempty"`
	IsSuperPrimary bool   `json:"is_super_primary,omitempty"`
	IsReadOnly     bool   `json:"is_read_only,omitempty"`
	*store.DataRow
}

func toDataRowResponse(d *store.DataRow) dataRowResponse {
	return dataRowResponse{
		ID:             d.ID,
		RawContactID:   d.RawContactID,
		Kind:           d.Kind.String(),
		IsPrimary:      d.IsPrimary,
		IsSuperPrimary: d.IsSuperPrimary,
		IsReadOnly:     d.IsReadOnly,
		DataRow:        d,
	}
}

// decodeDataRow reads meta fields and the kind-specific payload from the
// same JSON object.
func decodeDataRow(r *http.Request) (*store.DataRow, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}
	var meta dataRowMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}
	d := &store.DataRow{
		ID:             meta.ID,
		RawContactID:   meta.RawContactID,
		Kind:           store.ParseDataKind(meta.Kind),
		IsPrimary:      meta.IsPrimary,
		IsSuperPrimary: meta.IsSuperPrimary,
		IsReadOnly:     meta.IsReadOnly,
	}
	if err := d.UnmarshalPayload(body); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}
	return d, nil
}

func (h *Handlers) UpsertDataRow(w http.ResponseWriter, r *http.Request) {
	d, err := decodeDataRow(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if chi.URLParam(r, "rawContactID") != "" {
		rawContactID, err := idParam(r, "rawContactID")
		if err != nil {
			h.writeError(w, err)
			return
		}
		d.RawContactID = rawContactID
	} else {
		rowID, err := idParam(r, "id")
		if err != nil {
			h.writeError(w, err)
			return
		}
		d.ID = rowID
	}
	out, err := h.engine.UpsertDataRow(r.Context(), d, writeOpts(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDataRowResponse(out))
}

func (h *Handlers) DeleteDataRow(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.DeleteDataRow(r.Context(), id, writeOpts(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) ApplyUsageFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		Type store.UsageType `json:"type"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.ApplyUsageFeedback(r.Context(), id, body.Type, time.Now()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// Contacts.

func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.engine.GetContact(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) RecomputeContact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.RecomputeContact(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) SetContactStarred(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		Starred bool `json:"starred"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.SetContactStarred(r.Context(), id, body.Starred, writeOpts(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) SetContactSendToVoicemail(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		SendToVoicemail bool `json:"send_to_voicemail"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.SetContactSendToVoicemail(r.Context(), id, body.SendToVoicemail, writeOpts(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) SetContactRingtone(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		CustomRingtone string `json:"custom_ringtone"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.SetContactRingtone(r.Context(), id, body.CustomRingtone, writeOpts(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// Aggregation exceptions.

func (h *Handlers) SetAggregationException(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type          store.ExceptionType `json:"type"`
		RawContactID1 int64               `json:"raw_contact_id1"`
		RawContactID2 int64               `json:"raw_contact_id2"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	err := h.engine.SetAggregationException(r.Context(), body.Type, body.RawContactID1, body.RawContactID2)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// Lookup.

func (h *Handlers) Lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, fmt.Errorf("%w: missing query parameter q", engine.ErrValidation))
		return
	}
	suppress := r.URL.Query().Get("suppress_duplicates") != "false"
	refs, err := h.engine.LookupByPhoneOrEmail(r.Context(), q, suppress)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": refs})
}

// Groups.

func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.engine.ListGroups(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var g store.Group
	if err := decodeBody(r, &g); err != nil {
		h.writeError(w, err)
		return
	}
	g.ID = 0
	out, err := h.engine.InsertGroup(r.Context(), &g)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var g store.Group
	if err := decodeBody(r, &g); err != nil {
		h.writeError(w, err)
		return
	}
	g.ID = id
	if err := h.engine.UpdateGroup(r.Context(), &g); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &g)
}

func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.DeleteGroup(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// Presence.

func (h *Handlers) UpdatePresence(w http.ResponseWriter, r *http.Request) {
	var p store.PresenceRow
	if err := decodeBody(r, &p); err != nil {
		h.writeError(w, err)
		return
	}
	if p.StatusTimestamp.IsZero() {
		p.StatusTimestamp = time.Now()
	}
	if err := h.engine.UpdatePresence(r.Context(), &p); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) DeletePresence(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "dataRowID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.DeletePresence(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// Photos.

func (h *Handlers) SetRawContactPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPhotoUpload))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}
	if r.URL.Query().Get("async") == "true" {
		if err := h.queue.Enqueue(id, data, writeOpts(r)); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, nil)
		return
	}
	fileID, err := h.photos.AttachToRawContact(r.Context(), id, data, writeOpts(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"photo_file_id": fileID})
}

func (h *Handlers) GetPhoto(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	res := photo.Thumbnail
	if r.URL.Query().Get("size") == "display" {
		res = photo.Display
	}
	blob, err := h.photos.Photo(r.Context(), fileID, res)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (h *Handlers) AttachStreamItemPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPhotoUpload))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}
	fileID, err := h.photos.AttachToStreamItem(r.Context(), id, data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"photo_file_id": fileID})
}

// Accounts.

func (h *Handlers) AccountsChanged(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Accounts []store.Account `json:"accounts"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.OnAccountsChanged(r.Context(), body.Accounts); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) PurgeDeleted(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Account *store.Account `json:"account"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.PurgeDeletedRawContacts(r.Context(), body.Account); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
