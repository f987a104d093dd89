package actorstats

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/telhawk-systems/edi-stack/common/logging"
)

// Collector accumulates actor activity in memory and flushes it to Redis
// periodically. Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *logging.Logger

	mu      sync.Mutex
	batches map[string]*Batch

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCollector starts a collector flushing every flushInterval.
func NewCollector(client *Client, flushInterval time.Duration, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[string]*Batch),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record accumulates one activity for later flushing.
func (c *Collector) Record(actorNumber string, activity Activity, clientIP net.IP) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[actorNumber]
	if !ok {
		batch = NewBatch(actorNumber)
		c.batches[actorNumber] = batch
	}
	batch.Add(activity, clientIP)
}

// GetStats reads flushed statistics for an actor.
func (c *Collector) GetStats(ctx context.Context, actorNumber string) (*Stats, error) {
	return c.client.GetStats(ctx, actorNumber)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*Batch)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush actor stats",
				logging.ActorNumber(batch.ActorNumber),
				logging.Error(err),
			)
			// Merge back for the next attempt.
			c.mu.Lock()
			if existing, ok := c.batches[batch.ActorNumber]; ok {
				existing.Merge(batch)
			} else {
				c.batches[batch.ActorNumber] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
	}

	if flushed > 0 {
		c.logger.Debug("flushed actor stats", logging.Count(flushed))
	}
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop ends the flush loop after a final flush. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

// Pending returns the unflushed request count per actor.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]int64, len(c.batches))
	for actor, batch := range c.batches {
		pending[actor] = batch.Requests()
	}
	return pending
}
