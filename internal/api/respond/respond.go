// Package respond provides shared JSON response utilities for API handlers.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrorResponse is the standard error shape for dashboard API errors.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

// Source says how a cacheable payload was produced.
type Source int

const (
	// Miss is a payload built for this request.
	Miss Source = iota
	// Hit is a payload served from the cache within its TTL.
	Hit
	// Stale is an expired payload served because the upstream failed.
	Stale
)

func (s Source) header() string {
	switch s {
	case Hit:
		return "HIT"
	case Stale:
		return "STALE"
	default:
		return "MISS"
	}
}

// WriteJSON writes pre-encoded JSON with ETag, X-Cache and Cache-Control
// headers. Stale payloads are marked no-cache so browsers revalidate.
func WriteJSON(w http.ResponseWriter, data []byte, etag string, ttl time.Duration, src Source) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("ETag", etag)
	h.Set("Vary", "Accept-Encoding")
	h.Set("X-Cache", src.header())
	if src == Stale {
		h.Set("X-Cache-Stale", "true")
		h.Set("Cache-Control", "no-cache")
	} else {
		maxAge := int(ttl.Seconds())
		h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", maxAge, maxAge/2))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// WriteNotModified sends a 304 with the matching ETag.
func WriteNotModified(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusNotModified)
}

// WriteError sends a structured JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorDetail(w, status, code, message, "")
}

// WriteErrorDetail sends a structured error with additional detail.
func WriteErrorDetail(w http.ResponseWriter, status int, code, message, detail string) {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Detail = detail
	WriteJSONObject(w, status, resp)
}

// WriteJSONObject marshals a Go value to JSON and writes it uncached.
// Used for health checks, diagnostics and the cron endpoints.
func WriteJSONObject(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteFailure is the cron error shape: {"success": false, "error": msg}.
func WriteFailure(w http.ResponseWriter, status int, msg string) {
	WriteJSONObject(w, status, struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, msg})
}
