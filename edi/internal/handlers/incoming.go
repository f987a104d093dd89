package handlers

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/telhawk-systems/edi-stack/common/httputil"
	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/actorstats"
	"github.com/telhawk-systems/edi-stack/edi/internal/metrics"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/service"
)

// ReceiveResponse answers an incoming submission in the request's format.
type ReceiveResponse struct {
	XMLName   xml.Name                 `json:"-" xml:"ReceiveResponse"`
	Success   bool                     `json:"success" xml:"success"`
	MessageID string                   `json:"message_id,omitempty" xml:"messageId,omitempty"`
	Errors    []models.ValidationError `json:"errors,omitempty" xml:"errors>error,omitempty"`
}

func requestFormat(r *http.Request) (models.Format, bool) {
	switch httputil.MediaType(r) {
	case httputil.ContentTypeJSON:
		return models.FormatJSON, true
	case httputil.ContentTypeXML, "text/xml":
		return models.FormatXML, true
	default:
		return "", false
	}
}

func writeReceiveResponse(w http.ResponseWriter, format models.Format, status int, resp *ReceiveResponse) {
	if format == models.FormatXML {
		httputil.WriteXML(w, status, resp)
		return
	}
	httputil.WriteJSON(w, status, resp)
}

// ReceiveIncoming handles POST /api/incoming/{documentType}
func (h *Handler) ReceiveIncoming(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	documentType, err := models.DocumentTypeFromName(mux.Vars(r)["documentType"])
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	format, ok := requestFormat(r)
	if !ok {
		httputil.WriteError(w, http.StatusUnsupportedMediaType, "content type must be application/json or application/xml")
		return
	}

	decision, err := h.limiter.Allow(r.Context(), id.ActorNumber)
	if err != nil {
		// Fail open when Redis is unavailable.
		h.logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
	} else if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	h.recordActivity(r, id.ActorNumber, actorstats.ActivityReceived)
	result, err := h.receiver.ReceiveIncoming(r.Context(), id, documentType, format, body)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedDocument) {
			metrics.IncomingTotal.WithLabelValues(string(documentType), "unsupported").Inc()
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeFailure(w, r, "receive incoming document", err)
		return
	}

	resp := &ReceiveResponse{Success: result.Success, Errors: result.Errors}
	if result.Message != nil {
		resp.MessageID = result.Message.MessageID
	}
	if !result.Success {
		h.recordActivity(r, id.ActorNumber, actorstats.ActivityRejected)
		writeReceiveResponse(w, format, http.StatusBadRequest, resp)
		return
	}
	h.recordActivity(r, id.ActorNumber, actorstats.ActivityAccepted)
	writeReceiveResponse(w, format, http.StatusAccepted, resp)
}
