package httputil

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"messageId": "m-1"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"messageId":"m-1"}`, rec.Body.String())
}

func TestWriteXML(t *testing.T) {
	type payload struct {
		XMLName xml.Name `xml:"Ack"`
		ID      string   `xml:"id"`
	}

	rec := httptest.NewRecorder()
	WriteXML(rec, http.StatusBadRequest, payload{ID: "x"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ContentTypeXML, rec.Header().Get("Content-Type"))
	assert.Equal(t, xml.Header+"<Ack><id>x</id></Ack>", rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, "bundle not found")
	assert.JSONEq(t, `{"error":"bundle not found"}`, rec.Body.String())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:80", "10.0.0.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": "10.0.0.3"}, "1.1.1.1:80", "10.0.0.3"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.4"}, "1.1.1.1:80", "10.0.0.4"},
		{"remote addr", nil, "192.168.1.5:4444", "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, GetClientIP(req))
		})
	}
}

func TestMediaType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "", MediaType(req))

	req.Header.Set("Content-Type", "Application/JSON; charset=utf-8")
	assert.Equal(t, "application/json", MediaType(req))

	req.Header.Set("Content-Type", ";;;")
	assert.Equal(t, "", MediaType(req))
}
