// Package actorstats keeps Redis-backed activity statistics per market actor.
//
// Several gateway instances write concurrently; any instance can read.
//
// Redis Key Structure:
//
//	edi:stats:{actor}                - Hash with totals per activity and last seen data
//	edi:hourly:{actor}:{YYYYMMDDHH}  - Request count for a specific hour (expires 48h)
//	edi:daily:{actor}:{YYYYMMDD}     - Request count for a specific day (expires 7d)
//	edi:ips:{actor}:{YYYYMMDD}       - Set of client IPs for the day (expires 7d)
//	edi:instances:{actor}            - Hash of gateway instance -> last seen timestamp
package actorstats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Activity is one kind of request an actor makes against the gateway.
type Activity string

const (
	ActivityReceived Activity = "received"
	ActivityAccepted Activity = "accepted"
	ActivityRejected Activity = "rejected"
	ActivityPeeked   Activity = "peeked"
	ActivityDequeued Activity = "dequeued"
)

// Activities lists every tracked activity in reporting order.
var Activities = []Activity{ActivityReceived, ActivityAccepted, ActivityRejected, ActivityPeeked, ActivityDequeued}

const (
	statsPrefix  = "edi:stats:"
	hourlyTTL    = 48 * time.Hour
	dailyTTL     = 7 * 24 * time.Hour
	instancesTTL = 24 * time.Hour
)

// Stats is the current activity summary of one actor.
type Stats struct {
	ActorNumber      string             `json:"actor_number"`
	LastSeenAt       *time.Time         `json:"last_seen_at,omitempty"`
	LastSeenIP       string             `json:"last_seen_ip,omitempty"`
	Totals           map[Activity]int64 `json:"totals"`
	RequestsLastHour int64              `json:"requests_last_hour"`
	RequestsLast24h  int64              `json:"requests_last_24h"`
	UniqueIPsToday   int64              `json:"unique_ips_today"`
	Instances        map[string]string  `json:"instances,omitempty"`
	RetrievedAt      time.Time          `json:"retrieved_at"`
}

// Client records and reads actor statistics.
type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient wraps an existing Redis connection. instanceID identifies this
// gateway process (hostname and pid, pod name).
func NewClient(client *redis.Client, instanceID string) *Client {
	return &Client{
		redis:      client,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Batch holds activity accumulated for one actor between flushes.
type Batch struct {
	ActorNumber string
	Counts      map[Activity]int64
	ClientIPs   map[string]struct{}
	LastIP      net.IP
}

// NewBatch creates an empty batch for an actor.
func NewBatch(actorNumber string) *Batch {
	return &Batch{
		ActorNumber: actorNumber,
		Counts:      make(map[Activity]int64),
		ClientIPs:   make(map[string]struct{}),
	}
}

// Add accumulates one activity.
func (b *Batch) Add(activity Activity, clientIP net.IP) {
	b.Counts[activity]++
	if clientIP != nil {
		b.ClientIPs[clientIP.String()] = struct{}{}
		b.LastIP = clientIP
	}
}

// Merge folds another batch for the same actor into b.
func (b *Batch) Merge(other *Batch) {
	for activity, n := range other.Counts {
		b.Counts[activity] += n
	}
	for ip := range other.ClientIPs {
		b.ClientIPs[ip] = struct{}{}
	}
	if other.LastIP != nil {
		b.LastIP = other.LastIP
	}
}

// Requests is the number of gateway requests in the batch. Accepted and
// rejected outcomes belong to a received request and are not counted twice.
func (b *Batch) Requests() int64 {
	return b.Counts[ActivityReceived] + b.Counts[ActivityPeeked] + b.Counts[ActivityDequeued]
}

func (b *Batch) empty() bool {
	for _, n := range b.Counts {
		if n > 0 {
			return false
		}
	}
	return true
}

// FlushBatch writes a batch to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *Batch) error {
	if batch.empty() {
		return nil
	}

	now := c.now()
	dayKey := now.Format("20060102")
	nowUnix := strconv.FormatInt(now.Unix(), 10)

	pipe := c.redis.Pipeline()

	statsKey := statsPrefix + batch.ActorNumber
	fields := map[string]interface{}{"last_seen_at": nowUnix}
	if batch.LastIP != nil {
		fields["last_seen_ip"] = batch.LastIP.String()
	}
	pipe.HSet(ctx, statsKey, fields)
	for activity, n := range batch.Counts {
		pipe.HIncrBy(ctx, statsKey, string(activity), n)
	}

	if requests := batch.Requests(); requests > 0 {
		hourlyKey := fmt.Sprintf("edi:hourly:%s:%s", batch.ActorNumber, now.Format("2006010215"))
		pipe.IncrBy(ctx, hourlyKey, requests)
		pipe.Expire(ctx, hourlyKey, hourlyTTL)

		dailyKey := fmt.Sprintf("edi:daily:%s:%s", batch.ActorNumber, dayKey)
		pipe.IncrBy(ctx, dailyKey, requests)
		pipe.Expire(ctx, dailyKey, dailyTTL)
	}

	if len(batch.ClientIPs) > 0 {
		ipsKey := fmt.Sprintf("edi:ips:%s:%s", batch.ActorNumber, dayKey)
		ips := make([]interface{}, 0, len(batch.ClientIPs))
		for ip := range batch.ClientIPs {
			ips = append(ips, ip)
		}
		pipe.SAdd(ctx, ipsKey, ips...)
		pipe.Expire(ctx, ipsKey, dailyTTL)
	}

	instancesKey := "edi:instances:" + batch.ActorNumber
	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, instancesTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush actor stats: %w", err)
	}
	return nil
}

// GetStats reads the statistics of one actor. An actor never seen yields
// zero totals.
func (c *Client) GetStats(ctx context.Context, actorNumber string) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, statsPrefix+actorNumber)
	hourlyCmds := make([]*redis.StringCmd, 24)
	for i := range hourlyCmds {
		t := now.Add(-time.Duration(i) * time.Hour)
		hourlyCmds[i] = pipe.Get(ctx, fmt.Sprintf("edi:hourly:%s:%s", actorNumber, t.Format("2006010215")))
	}
	ipsCmd := pipe.SCard(ctx, fmt.Sprintf("edi:ips:%s:%s", actorNumber, now.Format("20060102")))
	instancesCmd := pipe.HGetAll(ctx, "edi:instances:"+actorNumber)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get actor stats: %w", err)
	}

	stats := &Stats{
		ActorNumber: actorNumber,
		Totals:      make(map[Activity]int64, len(Activities)),
		Instances:   make(map[string]string),
		RetrievedAt: now,
	}
	for _, activity := range Activities {
		stats.Totals[activity] = 0
	}

	if fields, err := statsCmd.Result(); err == nil {
		if unix, err := strconv.ParseInt(fields["last_seen_at"], 10, 64); err == nil {
			t := time.Unix(unix, 0).UTC()
			stats.LastSeenAt = &t
		}
		stats.LastSeenIP = fields["last_seen_ip"]
		for _, activity := range Activities {
			if n, err := strconv.ParseInt(fields[string(activity)], 10, 64); err == nil {
				stats.Totals[activity] = n
			}
		}
	}

	for i, cmd := range hourlyCmds {
		n, err := cmd.Int64()
		if err != nil {
			continue
		}
		if i == 0 {
			stats.RequestsLastHour = n
		}
		stats.RequestsLast24h += n
	}

	if n, err := ipsCmd.Result(); err == nil {
		stats.UniqueIPsToday = n
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.Instances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}

// ListActiveActors returns the actors seen within the last duration.
func (c *Client) ListActiveActors(ctx context.Context, since time.Duration) ([]string, error) {
	cutoff := c.now().Add(-since).Unix()

	var actors []string
	iter := c.redis.Scan(ctx, 0, statsPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		lastSeen, err := c.redis.HGet(ctx, key, "last_seen_at").Int64()
		if err == nil && lastSeen >= cutoff {
			actors = append(actors, strings.TrimPrefix(key, statsPrefix))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan actor stats: %w", err)
	}
	return actors, nil
}
