package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/huanshenyi/cdk-image-upload/pkg/storage/objectstore"
)

type fixture struct {
	handler   *HTTPHandler
	originals *objectstore.Memory
	derived   *objectstore.Memory
	publisher *recordingPublisher
}

func newFixture() *fixture {
	originals := objectstore.NewMemory()
	derived := objectstore.NewMemory()
	pub := &recordingPublisher{}
	svc := newTestService(originals, pub)
	return &fixture{
		handler:   NewHTTPHandler(svc, derived, zap.NewNop(), 10<<20),
		originals: originals,
		derived:   derived,
		publisher: pub,
	}
}

func uploadBody(t *testing.T, image, contentType string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"image":       image,
		"contentType": contentType,
	})
	require.NoError(t, err)
	return body
}

func TestUploadEndpoint(t *testing.T) {
	f := newFixture()
	body := uploadBody(t, base64.StdEncoding.EncodeToString([]byte("jpeg bytes")), "image/jpeg")

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp struct {
		Message string `json:"message"`
		ImageID string `json:"imageId"`
		URL     string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Image uploaded successfully", resp.Message)
	assert.Regexp(t, keyPattern, resp.ImageID)
	assert.Equal(t, "/images/"+resp.ImageID, resp.URL)

	_, err := f.originals.Get(context.Background(), resp.ImageID)
	assert.NoError(t, err)
}

func TestUploadEndpointBase64WrappedBody(t *testing.T) {
	f := newFixture()
	body := uploadBody(t, base64.StdEncoding.EncodeToString([]byte("png bytes")), "image/png")
	wrapped := base64.StdEncoding.EncodeToString(body)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte(wrapped)))
	req.Header.Set("Content-Transfer-Encoding", "base64")
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.originals.Len())
}

func TestUploadEndpointClientErrors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty body", nil},
		{"not json", []byte("hello")},
		{"missing image", []byte(`{"contentType":"image/png"}`)},
		{"missing content type", []byte(`{"image":"aGVsbG8="}`)},
		{"bad base64", []byte(`{"image":"%%%%","contentType":"image/png"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.handler.Router().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, f.originals.Len())
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestUploadEndpointStorageFailure(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(&failingStore{Client: objectstore.NewMemory()}, pub)
	handler := NewHTTPHandler(svc, objectstore.NewMemory(), zap.NewNop(), 10<<20)

	body := uploadBody(t, base64.StdEncoding.EncodeToString([]byte("x")), "image/png")
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// The caller sees a generic message, not the storage detail.
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed to upload image", resp["error"])
}

// opaqueReader hides the underlying reader's type so httptest leaves
// ContentLength unset and the size limit is enforced while reading.
type opaqueReader struct {
	io.Reader
}

func TestUploadEndpointBodyOverLimitWhileReading(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(objectstore.NewMemory(), pub)
	handler := NewHTTPHandler(svc, objectstore.NewMemory(), zap.NewNop(), 16)

	req := httptest.NewRequest(http.MethodPost, "/upload", opaqueReader{bytes.NewReader(make([]byte, 64))})
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, pub.events)
}

type brokenReader struct{}

func (brokenReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestUploadEndpointBodyReadFailure(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/upload", opaqueReader{brokenReader{}})
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	// A read failure is the client's problem, not an oversized payload.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.originals.Len())
}

func TestOptionsPreflight(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	// No store interaction on preflight.
	assert.Equal(t, 0, f.originals.Len())
	assert.Equal(t, 0, f.derived.Len())
	assert.Empty(t, f.publisher.events)
}

func TestGetImage(t *testing.T) {
	f := newFixture()
	content := []byte("resized png bytes")
	require.NoError(t, f.derived.Put(context.Background(), "photo-thumbnail.png", bytes.NewReader(content), int64(len(content)), "image/png"))

	req := httptest.NewRequest(http.MethodGet, "/images/photo-thumbnail.png", nil)
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestGetImageNotFound(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/images/missing.png", nil)
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
