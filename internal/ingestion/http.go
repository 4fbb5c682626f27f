package ingestion

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/huanshenyi/cdk-image-upload/pkg/storage/objectstore"
)

// HTTPHandler exposes REST endpoints for the upload pipeline.
type HTTPHandler struct {
	service      *Service
	derived      objectstore.Client
	logger       *zap.Logger
	maxSizeBytes int64
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes. The derived
// store backs the image retrieval passthrough.
func NewHTTPHandler(service *Service, derived objectstore.Client, logger *zap.Logger, maxSizeBytes int64) *HTTPHandler {
	h := &HTTPHandler{
		service:      service,
		derived:      derived,
		logger:       logger,
		maxSizeBytes: maxSizeBytes,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", h.handleHealth)
	r.Options("/upload", h.handleOptions)
	r.Post("/upload", h.handleUpload)
	r.Get("/images/{key}", h.handleGetImage)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleOptions answers CORS preflight without touching storage.
func (h *HTTPHandler) handleOptions(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Api-Key")
	w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.ContentLength > 0 && r.ContentLength > h.maxSizeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxSizeBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		uploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		uploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	// Transport-level base64 wrapping: the whole body is encoded and must be
	// unwrapped before JSON parsing.
	if r.Header.Get("Content-Transfer-Encoding") == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			uploadsRejected.Inc()
			writeError(w, http.StatusBadRequest, "request body is not valid base64")
			return
		}
		body = decoded
	}

	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		uploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.ProcessUpload(r.Context(), req)
	if err != nil {
		if IsClientError(err) {
			uploadsRejected.Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		uploadFailures.Inc()
		h.logger.Error("upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to upload image")
		return
	}

	uploadsAccepted.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Image uploaded successfully",
		"imageId": result.ImageID,
		"url":     result.URL,
	})
}

// handleGetImage streams a stored original or derivative out of the derived
// store, propagating its content type.
func (h *HTTPHandler) handleGetImage(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	key := chi.URLParam(r, "key")
	obj, err := h.derived.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		h.logger.Error("image fetch failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Error("image stream failed", zap.String("key", key), zap.Error(err))
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
