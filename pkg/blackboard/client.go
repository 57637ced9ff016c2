package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the blackboard.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new blackboard client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: thinktank instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client for instanceName.
func NewClientFromURL(redisURL, instanceName string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewClient(opts, instanceName)
}

// InstanceName returns the namespace this client writes under.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CreateSubmission writes a submission to Redis, indexes it and publishes an event.
// Validates the submission before writing. CreatedAtMs is set to now when zero.
// Publishes full submission JSON to thinktank:{instance}:submission_events after
// a successful write.
//
// The hash write and both index updates happen in one MULTI/EXEC transaction.
// Writing the same submission twice is safe.
func (c *Client) CreateSubmission(ctx context.Context, s *Submission) error {
	if s.CreatedAtMs == 0 {
		s.CreatedAtMs = time.Now().UnixMilli()
	}

	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	score := IndexScore(s.CreatedAtMs)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, SubmissionKey(c.instanceName, s.ID), SubmissionToHash(s))
		pipe.ZAdd(ctx, SubmissionsIndexKey(c.instanceName), redis.Z{Score: score, Member: s.ID})
		pipe.ZAdd(ctx, TankSubmissionsKey(c.instanceName, s.Tank), redis.Z{Score: score, Member: s.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write submission to Redis: %w", err)
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal submission for event: %w", err)
	}

	if err := c.rdb.Publish(ctx, SubmissionEventsChannel(c.instanceName), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish submission event: %w", err)
	}

	return nil
}

// GetSubmission retrieves a submission by ID.
// Returns (nil, redis.Nil) if the submission doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	hashData, err := c.rdb.HGetAll(ctx, SubmissionKey(c.instanceName, submissionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read submission from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	s, err := HashToSubmission(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize submission: %w", err)
	}
	return s, nil
}

// SubmissionExists checks if a submission exists without fetching it.
func (c *Client) SubmissionExists(ctx context.Context, submissionID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, SubmissionKey(c.instanceName, submissionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check submission existence: %w", err)
	}
	return exists > 0, nil
}

// ListTankSubmissions returns a tank's submissions, newest first.
// limit <= 0 returns all of them.
func (c *Client) ListTankSubmissions(ctx context.Context, tank string, limit int) ([]*Submission, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := c.rdb.ZRevRange(ctx, TankSubmissionsKey(c.instanceName, tank), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tank submissions: %w", err)
	}
	return c.loadSubmissions(ctx, ids)
}

// ListSubmissions returns submissions created in [sinceMs, untilMs], oldest first.
// A zero bound is open.
func (c *Client) ListSubmissions(ctx context.Context, sinceMs, untilMs int64) ([]*Submission, error) {
	lo, hi := "-inf", "+inf"
	if sinceMs > 0 {
		lo = strconv.FormatInt(sinceMs, 10)
	}
	if untilMs > 0 {
		hi = strconv.FormatInt(untilMs, 10)
	}

	ids, err := c.rdb.ZRangeByScore(ctx, SubmissionsIndexKey(c.instanceName), &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return c.loadSubmissions(ctx, ids)
}

// FindSubmissionIDs returns the IDs of submissions whose ID starts with prefix.
func (c *Client) FindSubmissionIDs(ctx context.Context, prefix string) ([]string, error) {
	pattern := SubmissionKey(c.instanceName, prefix+"*")
	keyPrefix := SubmissionKey(c.instanceName, "")

	var ids []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan submissions: %w", err)
	}
	return ids, nil
}

// loadSubmissions fetches submissions in order, skipping IDs whose hash has gone.
func (c *Client) loadSubmissions(ctx context.Context, ids []string) ([]*Submission, error) {
	if len(ids) == 0 {
		return []*Submission{}, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, SubmissionKey(c.instanceName, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}

	result := make([]*Submission, 0, len(ids))
	for i, cmd := range cmds {
		hashData := cmd.Val()
		if len(hashData) == 0 {
			continue
		}
		s, err := HashToSubmission(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize submission %s: %w", ids[i], err)
		}
		result = append(result, s)
	}
	return result, nil
}

// Subscription represents an active Pub/Sub subscription to submission events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Submission
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of submission events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Submission {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeSubmissionEvents subscribes to submission events for this instance.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// The subscription is confirmed with Redis before this method returns, so any
// submission created afterwards is delivered. Events are buffered (size 10);
// Redis Pub/Sub delivery is at-most-once.
func (c *Client) SubscribeSubmissionEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, SubmissionEventsChannel(c.instanceName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to submission events: %w", err)
	}

	eventsChan := make(chan *Submission, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var s Submission
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal submission event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &s:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetSubmission returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
