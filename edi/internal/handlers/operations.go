package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/telhawk-systems/edi-stack/common/httputil"
	"github.com/telhawk-systems/edi-stack/edi/internal/archive"
)

func (h *Handler) isPlatformOperator(actorNumber string) bool {
	return strings.EqualFold(actorNumber, h.roles.PlatformNumber())
}

// RunBundling handles POST /api/bundling/run. Only the platform itself may
// trigger a run.
func (h *Handler) RunBundling(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if !h.isPlatformOperator(id.ActorNumber) {
		httputil.WriteError(w, http.StatusForbidden, "bundling runs are restricted to the platform operator")
		return
	}

	report, err := h.bundler.Run(r.Context())
	if err != nil {
		h.writeFailure(w, r, "bundling run", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// SearchArchive handles GET /api/archive/messages. Actors only see
// documents they sent or received; the platform operator sees all.
func (h *Handler) SearchArchive(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if h.archive == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "message archive is not enabled")
		return
	}

	q := r.URL.Query()
	criteria := archive.SearchCriteria{
		MessageID:      q.Get("message_id"),
		SenderNumber:   q.Get("sender_number"),
		ReceiverNumber: q.Get("receiver_number"),
		DocumentType:   q.Get("document_type"),
	}
	if !h.isPlatformOperator(id.ActorNumber) {
		criteria.ActorNumber = id.ActorNumber
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &criteria.From}, {"to", &criteria.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
			return
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		criteria.Limit = limit
	}

	messages, err := h.archive.Search(r.Context(), criteria)
	if err != nil {
		h.writeFailure(w, r, "archive search", err)
		return
	}
	if messages == nil {
		messages = []*archive.ArchivedMessage{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// ActorStats handles GET /api/actors/{actorNumber}/stats. "me" names the
// caller; only the platform operator may read other actors.
func (h *Handler) ActorStats(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if h.stats == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "actor statistics are not enabled")
		return
	}

	actorNumber := mux.Vars(r)["actorNumber"]
	if actorNumber == "me" {
		actorNumber = id.ActorNumber
	}
	if actorNumber != id.ActorNumber && !h.isPlatformOperator(id.ActorNumber) {
		httputil.WriteError(w, http.StatusForbidden, "actors may only read their own statistics")
		return
	}

	stats, err := h.stats.GetStats(r.Context(), actorNumber)
	if err != nil {
		h.writeFailure(w, r, "actor stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
