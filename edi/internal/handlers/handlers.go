// Package handlers provides HTTP request handlers for the EDI service.
package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/edi-stack/common/httputil"
	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/actorstats"
	"github.com/telhawk-systems/edi-stack/edi/internal/archive"
	"github.com/telhawk-systems/edi-stack/edi/internal/auth"
	"github.com/telhawk-systems/edi-stack/edi/internal/bundling"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/queue"
	"github.com/telhawk-systems/edi-stack/edi/internal/ratelimit"
	"github.com/telhawk-systems/edi-stack/edi/internal/service"
)

// IncomingReceiver accepts incoming documents.
type IncomingReceiver interface {
	ReceiveIncoming(ctx context.Context, actor models.ActorIdentity, documentType models.DocumentType,
		format models.Format, body []byte) (*service.ReceiveResult, error)
}

// Queue serves the actor message queue.
type Queue interface {
	Peek(ctx context.Context, actor models.Actor, category models.Category, format models.Format) (*queue.PeekResult, error)
	Dequeue(ctx context.Context, actor models.Actor, bundleID uuid.UUID) error
}

// BundlerRunner runs one bundling pass.
type BundlerRunner interface {
	Run(ctx context.Context) (*bundling.Report, error)
}

// ArchiveSearcher searches archived documents.
type ArchiveSearcher interface {
	Search(ctx context.Context, criteria archive.SearchCriteria) ([]*archive.ArchivedMessage, error)
}

// ActivityRecorder counts actor requests for the statistics endpoint.
type ActivityRecorder interface {
	Record(actorNumber string, activity actorstats.Activity, clientIP net.IP)
}

// StatsReader reads recorded actor statistics.
type StatsReader interface {
	GetStats(ctx context.Context, actorNumber string) (*actorstats.Stats, error)
}

// RoleTable maps between role codes and the role names held by actors.
type RoleTable interface {
	RoleName(code string) (string, bool)
	RoleCodeForName(name string) (string, bool)
	PlatformNumber() string
}

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the EDI service
type Handler struct {
	receiver     IncomingReceiver
	queue        Queue
	bundler      BundlerRunner
	archive      ArchiveSearcher
	limiter      ratelimit.RateLimiter
	activity     ActivityRecorder
	stats        StatsReader
	roles        RoleTable
	checks       map[string]HealthCheck
	maxBodyBytes int64
	logger       *logging.Logger
}

// Option configures optional collaborators of the Handler.
type Option func(*Handler)

func WithArchive(a ArchiveSearcher) Option { return func(h *Handler) { h.archive = a } }
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithActorStats records actor activity and serves it from /api/actors.
func WithActorStats(recorder ActivityRecorder, reader StatsReader) Option {
	return func(h *Handler) {
		h.activity = recorder
		h.stats = reader
	}
}

func WithMaxBodyBytes(n int64) Option     { return func(h *Handler) { h.maxBodyBytes = n } }
func WithLogger(l *logging.Logger) Option { return func(h *Handler) { h.logger = l } }

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// NewHandler creates a new Handler instance
func NewHandler(receiver IncomingReceiver, q Queue, bundler BundlerRunner, roles RoleTable, opts ...Option) *Handler {
	h := &Handler{
		receiver:     receiver,
		queue:        q,
		bundler:      bundler,
		limiter:      &ratelimit.NoOpRateLimiter{},
		roles:        roles,
		checks:       make(map[string]HealthCheck),
		maxBodyBytes: 50 << 20,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// Helper Methods
// =============================================================================

var (
	errNoIdentity  = errors.New("request is not authenticated")
	errRoleMissing = errors.New("a role query parameter is required for actors holding several roles")
	errRoleNotHeld = errors.New("authenticated actor does not hold the requested role")
)

func identity(r *http.Request) (models.ActorIdentity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return models.ActorIdentity{}, errNoIdentity
	}
	return id, nil
}

// actingAs resolves the role the caller acts in. The role query parameter
// accepts a role code ("DDQ") or role name ("EnergySupplier"); without it
// the caller must hold exactly one known role.
func (h *Handler) actingAs(r *http.Request, id models.ActorIdentity) (models.Actor, error) {
	if param := strings.TrimSpace(r.URL.Query().Get("role")); param != "" {
		role, err := models.ActorRoleFromCode(strings.ToUpper(param))
		if err != nil {
			if role, err = models.ActorRoleFromName(param); err != nil {
				return models.Actor{}, err
			}
		}
		name, ok := h.roles.RoleName(role.Code())
		if !ok || !id.HasRole(name) {
			return models.Actor{}, errRoleNotHeld
		}
		return models.Actor{Number: id.ActorNumber, Role: role}, nil
	}

	var held []models.ActorRole
	for _, name := range id.Roles {
		code, ok := h.roles.RoleCodeForName(name)
		if !ok {
			continue
		}
		if role, err := models.ActorRoleFromCode(code); err == nil {
			held = append(held, role)
		}
	}
	switch len(held) {
	case 0:
		return models.Actor{}, errRoleNotHeld
	case 1:
		return models.Actor{Number: id.ActorNumber, Role: held[0]}, nil
	default:
		return models.Actor{}, errRoleMissing
	}
}

func (h *Handler) recordActivity(r *http.Request, actorNumber string, activity actorstats.Activity) {
	if h.activity == nil {
		return
	}
	h.activity.Record(actorNumber, activity, net.ParseIP(httputil.GetClientIP(r)))
}

// =============================================================================
// Health Check Handlers
// =============================================================================

// HealthCheck reports the service and dependency health. Any failing
// dependency turns the response into 503.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status":     overall,
		"service":    "edi",
		"components": components,
	})
}
