// Package bundling groups unbundled outgoing messages into bundles that
// actors peek and dequeue.
package bundling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/metrics"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/repository"
)

// Notifier is told about the bundles created by a run.
type Notifier interface {
	BundlesCreated(ctx context.Context, bundles []*models.Bundle) error
}

// Config controls bundle sizes and when partial groups are flushed.
type Config struct {
	MaxBundleSize int
	// MinBundleSize is the smallest group bundled before FlushTimeout.
	MinBundleSize int
	FlushTimeout  time.Duration
	ScanLimit     int
}

func DefaultConfig() Config {
	return Config{
		MaxBundleSize: 500,
		MinBundleSize: 1,
		FlushTimeout:  time.Minute,
		ScanLimit:     10000,
	}
}

// Report summarises one bundling run.
type Report struct {
	BundlesCreated   int  `json:"bundles_created"`
	MessagesBundled  int  `json:"messages_bundled"`
	MessagesDeferred int  `json:"messages_deferred"`
	Conflicts        int  `json:"conflicts"`
	Skipped          bool `json:"skipped"`
}

// Bundler assigns unbundled outgoing messages to bundles.
type Bundler struct {
	store    repository.OutgoingStore
	notifier Notifier
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewBundler creates a bundler. notifier may be nil.
func NewBundler(store repository.OutgoingStore, notifier Notifier, cfg Config, logger *logging.Logger) *Bundler {
	if cfg.MaxBundleSize <= 0 {
		cfg.MaxBundleSize = DefaultConfig().MaxBundleSize
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = DefaultConfig().ScanLimit
	}
	if cfg.MinBundleSize <= 0 {
		cfg.MinBundleSize = 1
	}
	if cfg.MinBundleSize > cfg.MaxBundleSize {
		cfg.MinBundleSize = cfg.MaxBundleSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bundler{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run bundles everything currently eligible. A run that finds another run
// in progress returns a skipped report. Messages already taken by a
// concurrent run are counted as conflicts and left alone.
func (b *Bundler) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.BundlingDuration.Observe(time.Since(start).Seconds())
	}()

	release, acquired, err := b.store.AcquireBundlingLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire bundling lock: %w", err)
	}
	if !acquired {
		b.logger.DebugContext(ctx, "bundling already in progress, skipping run")
		return &Report{Skipped: true}, nil
	}
	defer release()

	pending, err := b.store.ListUnbundled(ctx, b.cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list unbundled messages: %w", err)
	}

	report := &Report{}
	var created []*models.Bundle
	now := b.now()

	for _, group := range groupMessages(pending) {
		chunks, deferred := b.split(group, now)
		report.MessagesDeferred += deferred

		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			bundle, err := b.newBundle(chunk, now)
			if err != nil {
				return report, err
			}
			if err := b.store.AssignBundle(ctx, bundle); err != nil {
				if errors.Is(err, repository.ErrAlreadyBundled) {
					report.Conflicts++
					metrics.BundlingConflicts.Inc()
					b.logger.WarnContext(ctx, "bundle skipped, messages already bundled",
						logging.ActorNumber(bundle.Receiver.Number),
						logging.DocumentType(string(bundle.DocumentType)),
						logging.Count(len(bundle.MessageIDs)),
					)
					continue
				}
				return report, fmt.Errorf("assign bundle: %w", err)
			}

			created = append(created, bundle)
			report.BundlesCreated++
			report.MessagesBundled += len(bundle.MessageIDs)
			metrics.BundlesCreated.WithLabelValues(string(bundle.DocumentType)).Inc()
			metrics.MessagesBundled.Add(float64(len(bundle.MessageIDs)))
		}
	}
	metrics.MessagesDeferred.Set(float64(report.MessagesDeferred))

	if len(created) > 0 {
		b.logger.InfoContext(ctx, "bundling run completed",
			slog.Int("bundles_created", report.BundlesCreated),
			slog.Int("messages_bundled", report.MessagesBundled),
			slog.Int("messages_deferred", report.MessagesDeferred),
		)
		if b.notifier != nil {
			if err := b.notifier.BundlesCreated(ctx, created); err != nil {
				b.logger.WarnContext(ctx, "failed to publish bundles created event", logging.Error(err))
			}
		}
	}
	return report, nil
}

// split cuts a group into full bundles. The remainder is bundled when it
// reaches the minimum size, answers a request, or has waited longer than
// the flush timeout; otherwise it is deferred.
func (b *Bundler) split(group []*models.OutgoingMessage, now time.Time) ([][]*models.OutgoingMessage, int) {
	var chunks [][]*models.OutgoingMessage
	for len(group) >= b.cfg.MaxBundleSize {
		chunks = append(chunks, group[:b.cfg.MaxBundleSize])
		group = group[b.cfg.MaxBundleSize:]
	}
	if len(group) == 0 {
		return chunks, 0
	}

	oldest := group[0]
	if len(group) >= b.cfg.MinBundleSize ||
		oldest.RelatedToMessageID != "" ||
		now.Sub(oldest.CreatedAt) >= b.cfg.FlushTimeout {
		return append(chunks, group), 0
	}
	return chunks, len(group)
}

func (b *Bundler) newBundle(chunk []*models.OutgoingMessage, now time.Time) (*models.Bundle, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate bundle id: %w", err)
	}
	messageID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate document message id: %w", err)
	}

	first := chunk[0]
	ids := make([]uuid.UUID, len(chunk))
	for i, msg := range chunk {
		ids[i] = msg.ID
	}
	return &models.Bundle{
		ID:                 id,
		MessageID:          messageID.String(),
		Receiver:           first.Receiver,
		DocumentType:       first.DocumentType,
		BusinessReason:     first.BusinessReason,
		RelatedToMessageID: first.RelatedToMessageID,
		MessageIDs:         ids,
		MaxSize:            b.cfg.MaxBundleSize,
		CreatedAt:          now.UTC(),
	}, nil
}

// groupMessages groups messages by bundle key. Groups keep the order of
// their oldest message and messages keep their input order.
func groupMessages(messages []*models.OutgoingMessage) [][]*models.OutgoingMessage {
	index := make(map[models.BundleKey]int)
	var groups [][]*models.OutgoingMessage
	for _, msg := range messages {
		key := msg.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], msg)
	}
	return groups
}
