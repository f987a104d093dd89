package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/telhawk-systems/edi-stack/common/messaging"
)

// enqueueResponse is the gateway's reply on the enqueue subject.
type enqueueResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Options controls a seeding run.
type Options struct {
	Count         int
	DocumentTypes []string
	Interval      time.Duration
	Timeout       time.Duration
}

// Summary counts the outcome of a run.
type Summary struct {
	Enqueued   int
	Duplicates int
	Failed     int
}

// Runner sends generated messages to the gateway over NATS.
type Runner struct {
	publisher messaging.Publisher
	generator *Generator
}

// NewRunner creates a Runner.
func NewRunner(publisher messaging.Publisher, generator *Generator) *Runner {
	return &Runner{publisher: publisher, generator: generator}
}

// Run generates and enqueues opts.Count messages, cycling through the
// document types. Individual failures are counted, not returned.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive")
	}
	types := opts.DocumentTypes
	if len(types) == 0 {
		types = DocumentTypes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	summary := &Summary{}
	for i := 0; i < opts.Count; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		req, err := r.generator.Generate(types[i%len(types)])
		if err != nil {
			return summary, err
		}

		resp, err := r.enqueue(ctx, req, opts.Timeout)
		switch {
		case err != nil:
			log.Printf("Failed to enqueue %s: %v", req.ExternalID, err)
			summary.Failed++
		case resp.Duplicate:
			summary.Duplicates++
		default:
			summary.Enqueued++
		}

		progressInterval := opts.Count / 10
		if progressInterval < 100 {
			progressInterval = 100
		}
		if (i+1)%progressInterval == 0 {
			log.Printf("Progress: %d/%d messages sent", i+1, opts.Count)
		}

		if opts.Interval > 0 && i < opts.Count-1 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}
	return summary, nil
}

func (r *Runner) enqueue(ctx context.Context, req *EnqueueRequest, timeout time.Duration) (*enqueueResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	reply, err := r.publisher.Request(ctx, messaging.SubjectOutgoingEnqueue, data, timeout)
	if err != nil {
		return nil, err
	}

	var resp enqueueResponse
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("rejected: %s", resp.Error)
	}
	return &resp, nil
}
