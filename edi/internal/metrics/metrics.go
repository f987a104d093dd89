package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Incoming document metrics
	IncomingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_incoming_documents_total",
			Help: "Total number of incoming documents by document type and outcome",
		},
		[]string{"document_type", "outcome"},
	)

	IncomingBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edi_incoming_document_bytes_total",
			Help: "Total bytes of incoming documents received",
		},
	)

	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_validation_errors_total",
			Help: "Total number of validation errors by error code",
		},
		[]string{"code"},
	)

	ValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edi_validation_duration_seconds",
			Help:    "Duration of incoming message validation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Outgoing intake metrics
	OutgoingEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_outgoing_messages_enqueued_total",
			Help: "Total number of outgoing messages enqueued by document type",
		},
		[]string{"document_type"},
	)

	OutgoingDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edi_outgoing_messages_duplicate_total",
			Help: "Total number of outgoing messages ignored as already enqueued",
		},
	)

	// Bundling metrics
	BundlesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_bundles_created_total",
			Help: "Total number of bundles created by document type",
		},
		[]string{"document_type"},
	)

	MessagesBundled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edi_messages_bundled_total",
			Help: "Total number of outgoing messages assigned to bundles",
		},
	)

	MessagesDeferred = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edi_messages_deferred",
			Help: "Outgoing messages left unbundled by the last bundling run",
		},
	)

	BundlingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edi_bundling_duration_seconds",
			Help:    "Duration of bundling runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BundlingConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edi_bundling_conflicts_total",
			Help: "Total number of bundle assignments skipped because a message was already bundled",
		},
	)

	// Queue metrics
	PeeksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_peeks_total",
			Help: "Total number of peeks by category, format and outcome",
		},
		[]string{"category", "format", "outcome"},
	)

	DequeuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_dequeues_total",
			Help: "Total number of dequeue calls by outcome",
		},
		[]string{"outcome"},
	)

	DocumentRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edi_document_render_duration_seconds",
			Help:    "Duration of outgoing document rendering in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	DocumentCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_document_cache_requests_total",
			Help: "Total number of document cache lookups by result",
		},
		[]string{"result"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"actor"},
	)

	// Archive metrics
	ArchiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_archive_errors_total",
			Help: "Total number of failed archive writes by direction",
		},
		[]string{"direction"},
	)

	// Event metrics
	EventPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_event_publish_errors_total",
			Help: "Total number of events that could not be published by event type",
		},
		[]string{"event"},
	)
)
