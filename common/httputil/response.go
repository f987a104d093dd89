package httputil

import (
	"encoding/json"
	"encoding/xml"
	"log/slog"
	"net/http"
)

// Content types used by the gateway.
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// WriteXML writes an XML response with the standard declaration.
func WriteXML(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", ContentTypeXML)
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode XML response", slog.String("error", err.Error()))
	}
}

// WriteBytes writes a pre-rendered body with the given content type.
func WriteBytes(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response body", slog.String("error", err.Error()))
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
