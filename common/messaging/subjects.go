package messaging

// Subject constants for the EDI message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	// Incoming documents that passed validation and were archived.
	SubjectIncomingAccepted = "edi.incoming.accepted"
	// Incoming documents that failed validation.
	SubjectIncomingRejected = "edi.incoming.rejected"

	// Outgoing messages produced by upstream domain services, to be enqueued.
	SubjectOutgoingEnqueue = "edi.outgoing.enqueue"

	// Bundle lifecycle
	SubjectBundlesCreated   = "edi.bundles.created"
	SubjectBundlesDequeued  = "edi.bundles.dequeued"
	SubjectBundlingRequests = "edi.bundling.run"

	// Probe subject for broker health checks. Never subscribed.
	SubjectHealthPing = "edi.health.ping"
)

// Queue group names for load-balanced consumers.
const (
	QueueEDIWorkers = "edi-workers"
)

// ActorSubject scopes subject to a single actor number.
// Example: edi.bundles.created.5790000000001
func ActorSubject(subject, actorNumber string) string {
	if actorNumber == "" {
		return subject
	}
	return subject + "." + actorNumber
}
