package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/common/messaging"
	"github.com/telhawk-systems/edi-stack/edi/internal/bundling"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/service"
)

// OutgoingIntake enqueues outgoing messages.
type OutgoingIntake interface {
	EnqueueOutgoing(ctx context.Context, req *service.EnqueueRequest) (*models.OutgoingMessage, bool, error)
}

// BundlerRunner runs one bundling pass.
type BundlerRunner interface {
	Run(ctx context.Context) (*bundling.Report, error)
}

// Handler processes incoming NATS messages for the EDI service.
type Handler struct {
	client  messaging.Client
	intake  OutgoingIntake
	bundler BundlerRunner
	logger  *logging.Logger
	subs    []messaging.Subscription
}

// NewHandler creates a new NATS message handler. bundler may be nil when
// bundling requests are served elsewhere.
func NewHandler(client messaging.Client, intake OutgoingIntake, bundler BundlerRunner, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		client:  client,
		intake:  intake,
		bundler: bundler,
		logger:  logger,
		subs:    make([]messaging.Subscription, 0),
	}
}

// Start begins listening for NATS messages.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.client.QueueSubscribe(messaging.SubjectOutgoingEnqueue, messaging.QueueEDIWorkers, h.handleEnqueue)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", messaging.SubjectOutgoingEnqueue, err)
	}
	h.subs = append(h.subs, sub)

	if h.bundler != nil {
		sub, err := h.client.QueueSubscribe(messaging.SubjectBundlingRequests, messaging.QueueEDIWorkers, h.handleBundlingRequest)
		if err != nil {
			_ = h.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", messaging.SubjectBundlingRequests, err)
		}
		h.subs = append(h.subs, sub)
	}

	h.logger.InfoContext(ctx, "NATS handler started", logging.Count(len(h.subs)))
	return nil
}

// Stop unsubscribes from all subjects.
func (h *Handler) Stop() error {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", "subject", sub.Subject(), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("NATS handler stopped")
	return nil
}

// handleEnqueue stores an outgoing message. Invalid requests are answered
// and dropped; store failures are returned so the broker logs them.
func (h *Handler) handleEnqueue(ctx context.Context, msg *messaging.Message) error {
	var req service.EnqueueRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid enqueue request", logging.Error(err))
		h.reply(ctx, msg, &EnqueueResponse{Error: "invalid JSON: " + err.Error()})
		return nil
	}

	out, created, err := h.intake.EnqueueOutgoing(ctx, &req)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		h.logger.WarnContext(ctx, "rejected enqueue request", "external_id", req.ExternalID, logging.Error(err))
		h.reply(ctx, msg, &EnqueueResponse{Error: err.Error()})
		return nil
	case err != nil:
		h.reply(ctx, msg, &EnqueueResponse{Error: err.Error()})
		return err
	}

	resp := &EnqueueResponse{Success: true, Duplicate: !created}
	if out != nil {
		resp.MessageID = out.ID.String()
	}
	h.reply(ctx, msg, resp)
	return nil
}

func (h *Handler) handleBundlingRequest(ctx context.Context, msg *messaging.Message) error {
	var req BundlingRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.reply(ctx, msg, &BundlingResponse{Error: "invalid JSON: " + err.Error()})
			return nil
		}
	}

	start := time.Now()
	report, err := h.bundler.Run(ctx)
	resp := &BundlingResponse{TookMs: time.Since(start).Milliseconds()}
	if err != nil {
		resp.Error = err.Error()
		h.reply(ctx, msg, resp)
		return err
	}
	resp.Success = true
	resp.Report = report
	h.logger.InfoContext(ctx, "bundling run requested",
		"requested_by", req.RequestedBy,
		"bundles_created", report.BundlesCreated)
	h.reply(ctx, msg, resp)
	return nil
}

// reply answers request/reply messages; plain publishes get no answer.
func (h *Handler) reply(ctx context.Context, msg *messaging.Message, data any) {
	if msg.Reply == "" {
		return
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal reply", logging.Error(err))
		return
	}
	if err := h.client.Publish(ctx, msg.Reply, bytes); err != nil {
		h.logger.WarnContext(ctx, "failed to publish reply", "subject", msg.Reply, logging.Error(err))
	}
}
