package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/config"
	"github.com/jw6ventures/contactd/internal/engine"
	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/photo"
	"github.com/jw6ventures/contactd/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	s := memory.New()
	eng := engine.New(s, normalize.NewPhoneNormalizer("US", 7), zap.NewNop())
	photos := photo.NewService(s, eng, photo.NewProcessor(0, 0), zap.NewNop())
	queue := photo.NewQueue(photos, 4, 1)
	h := NewHandlers(eng, photos, queue, zap.NewNop())

	srv := httptest.NewServer(NewRouter(&config.Config{}, s, h))
	t.Cleanup(srv.Close)
	return srv, eng
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func createRawContact(t *testing.T, baseURL string) (rawID, contactID int64) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/api/raw-contacts", map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(body["id"].(float64)), int64(body["contact_id"].(float64))
}

func TestCreateRawContactAndFetch(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, contactID := createRawContact(t, srv.URL)
	require.NotZero(t, rawID)
	require.NotZero(t, contactID)

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/raw-contacts/%d", srv.URL, rawID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(contactID), body["contact_id"])
	assert.Equal(t, true, body["dirty"])

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/contacts/%d", srv.URL, contactID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(contactID), body["id"])
}

func TestSyncAdapterWriteSkipsDirty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/raw-contacts?caller_is_syncadapter=true", map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, body["dirty"])
}

func TestAddDataRowAndLookup(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, contactID := createRawContact(t, srv.URL)
	resp, body := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/raw-contacts/%d/data", srv.URL, rawID),
		map[string]any{"kind": "phone", "phone": map[string]any{"number": "650-861-0000"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "phone", body["kind"])
	assert.Equal(t, float64(rawID), body["raw_contact_id"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/lookup?q=6508610000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	hit := results[0].(map[string]any)
	assert.Equal(t, float64(rawID), hit["raw_contact_id"])
	assert.Equal(t, float64(contactID), hit["contact_id"])
}

func TestUnknownKindReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, _ := createRawContact(t, srv.URL)
	resp, _ := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/raw-contacts/%d/data", srv.URL, rawID),
		map[string]any{"kind": "carrier_pigeon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMissingContactReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/contacts/12345", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLookupRequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAggregationExceptionMerges(t *testing.T) {
	srv, _ := newTestServer(t)

	rawA, _ := createRawContact(t, srv.URL)
	rawB, _ := createRawContact(t, srv.URL)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/aggregation-exceptions", map[string]any{
		"type":            1,
		"raw_contact_id1": rawA,
		"raw_contact_id2": rawB,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, bodyA := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/raw-contacts/%d", srv.URL, rawA), nil)
	_, bodyB := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/raw-contacts/%d", srv.URL, rawB), nil)
	assert.Equal(t, bodyA["contact_id"], bodyB["contact_id"])
}

func TestAggregationExceptionSamePairRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/aggregation-exceptions", map[string]any{
		"type":            1,
		"raw_contact_id1": 5,
		"raw_contact_id2": 5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStarredRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, contactID := createRawContact(t, srv.URL)
	resp, _ := doJSON(t, http.MethodPut,
		fmt.Sprintf("%s/api/raw-contacts/%d/starred", srv.URL, rawID),
		map[string]any{"starred": true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/contacts/%d", srv.URL, contactID), nil)
	assert.Equal(t, true, body["starred"])
}

func TestGroupLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/groups",
		map[string]any{"title": "Friends", "favorites": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	groupID := int64(body["id"].(float64))

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/groups", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["groups"].([]any), 1)

	resp, _ = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/groups/%d", srv.URL, groupID),
		map[string]any{"title": "Friends", "favorites": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/groups/%d", srv.URL, groupID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/groups", nil)
	assert.Empty(t, body["groups"])
}

func TestPhotoUploadAndFetch(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, contactID := createRawContact(t, srv.URL)

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for x := 0; x < 200; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	resp, err := http.Post(fmt.Sprintf("%s/api/raw-contacts/%d/photo", srv.URL, rawID),
		"application/octet-stream", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var upload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&upload))
	fileID := upload["photo_file_id"]
	require.NotEmpty(t, fileID)

	get, err := http.Get(fmt.Sprintf("%s/api/photos/%s?size=display", srv.URL, fileID))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "image/jpeg", get.Header.Get("Content-Type"))

	_, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/contacts/%d", srv.URL, contactID), nil)
	assert.Equal(t, fileID, body["photo_file_id"])
}

func TestPhotoUploadRejectsGarbage(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, _ := createRawContact(t, srv.URL)
	resp, err := http.Post(fmt.Sprintf("%s/api/raw-contacts/%d/photo", srv.URL, rawID),
		"application/octet-stream", bytes.NewReader([]byte("not an image")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteRawContactSoftDeletes(t *testing.T) {
	srv, _ := newTestServer(t)

	rawID, contactID := createRawContact(t, srv.URL)
	resp, _ := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/raw-contacts/%d", srv.URL, rawID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/raw-contacts/%d", srv.URL, rawID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["deleted"])

	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/contacts/%d", srv.URL, contactID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
