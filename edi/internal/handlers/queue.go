package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	cerrors "github.com/telhawk-systems/edi-stack/common/errors"
	"github.com/telhawk-systems/edi-stack/common/httputil"
	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/actorstats"
	"github.com/telhawk-systems/edi-stack/edi/internal/documents"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/queue"
)

// Response headers identifying a peeked bundle.
const (
	HeaderBundleID  = "X-Bundle-Id"
	HeaderMessageID = "X-Message-Id"
)

// Peek handles GET /api/peek/{category}?format=xml|ebix|json
func (h *Handler) Peek(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	actor, err := h.actingAs(r, id)
	if err != nil {
		httputil.WriteError(w, http.StatusForbidden, err.Error())
		return
	}

	category, err := models.CategoryFromCode(strings.ToLower(mux.Vars(r)["category"]))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	format := models.FormatXML
	if f := r.URL.Query().Get("format"); f != "" {
		if format, err = models.FormatFromCode(strings.ToLower(f)); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.queue.Peek(r.Context(), actor, category, format)
	switch {
	case errors.Is(err, queue.ErrNoContent):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, queue.ErrInvalidRequest):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, documents.ErrNoWriter), errors.Is(err, documents.ErrNotSupported):
		httputil.WriteError(w, http.StatusNotAcceptable, err.Error())
		return
	case err != nil:
		h.writeFailure(w, r, "peek", err)
		return
	}

	h.recordActivity(r, actor.Number, actorstats.ActivityPeeked)
	w.Header().Set(HeaderBundleID, result.BundleID.String())
	w.Header().Set(HeaderMessageID, result.MessageID)
	httputil.WriteBytes(w, http.StatusOK, result.ContentType, result.Document)
}

// Dequeue handles DELETE /api/dequeue/{bundleId}
func (h *Handler) Dequeue(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	actor, err := h.actingAs(r, id)
	if err != nil {
		httputil.WriteError(w, http.StatusForbidden, err.Error())
		return
	}

	bundleID, err := uuid.Parse(mux.Vars(r)["bundleId"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid bundle id")
		return
	}

	err = h.queue.Dequeue(r.Context(), actor, bundleID)
	switch {
	case errors.Is(err, queue.ErrBundleNotFound):
		httputil.WriteError(w, http.StatusNotFound, "bundle not found")
		return
	case err != nil:
		h.writeFailure(w, r, "dequeue", err)
		return
	}
	h.recordActivity(r, actor.Number, actorstats.ActivityDequeued)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"bundle_id": bundleID.String(), "status": "dequeued"})
}

// writeFailure answers unexpected errors. Transient failures get 503 so
// clients retry.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, operation string, err error) {
	h.logger.WithContext(r.Context()).Error(operation+" failed", logging.Error(err))
	if cerrors.IsTransient(err) {
		httputil.WriteError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, "internal error")
}
