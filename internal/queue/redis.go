package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis keeps a list of job ids plus a hash of payloads so several API
// nodes can share one queue. Push and Pop are Lua scripts, so each is a
// single atomic step on the server.
type Redis struct {
	client *redis.Client
	owned  bool
	closed atomic.Bool

	listKey       string
	payloadKey    string
	processingKey string
}

// NewRedis wraps an existing client. Shutdown leaves it open.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "ottie:previews"
	}
	return &Redis{
		client:        client,
		listKey:       prefix + ":queue",
		payloadKey:    prefix + ":jobs",
		processingKey: prefix + ":processing",
	}
}

// NewRedisFromURL dials url. Shutdown closes the client.
func NewRedisFromURL(url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	q := NewRedis(redis.NewClient(opt), prefix)
	q.owned = true
	return q, nil
}

var pushScript = redis.NewScript(`
local pos = redis.call('LPOS', KEYS[1], ARGV[1])
if pos then
  return pos + 1
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return redis.call('RPUSH', KEYS[1], ARGV[1])
`)

var popScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
  return false
end
local payload = redis.call('HGET', KEYS[2], id)
redis.call('HDEL', KEYS[2], id)
redis.call('SET', KEYS[3], id)
return {id, payload or ''}
`)

var doneScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Init checks the connection and reopens a queue that was shut down. A
// queue that owned its client cannot be reopened.
func (q *Redis) Init(ctx context.Context) error {
	if q.owned && q.closed.Load() {
		return ErrClosed
	}
	if err := q.client.Ping(ctx).Err(); err != nil {
		return err
	}
	q.closed.Store(false)
	return nil
}

func (q *Redis) Shutdown(context.Context) error {
	if q.closed.Swap(true) {
		return nil
	}
	if q.owned {
		return q.client.Close()
	}
	return nil
}

func (q *Redis) Push(ctx context.Context, job Job) (int, error) {
	if q.closed.Load() {
		return 0, ErrClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return 0, err
	}
	pos, err := pushScript.Run(ctx, q.client, []string{q.listKey, q.payloadKey}, job.ID.String(), string(payload)).Int()
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return pos, nil
}

func (q *Redis) Peek(ctx context.Context) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrClosed
	}
	id, err := q.client.LIndex(ctx, q.listKey, 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	payload, err := q.client.HGet(ctx, q.payloadKey, id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return decodeJob(id, payload)
}

func (q *Redis) Pop(ctx context.Context) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrClosed
	}
	res, err := popScript.Run(ctx, q.client, []string{q.listKey, q.payloadKey, q.processingKey}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue job: unexpected reply %v", res)
	}
	return decodeJob(res[0], res[1])
}

func (q *Redis) Position(ctx context.Context, id uuid.UUID) (int, bool, error) {
	if q.closed.Load() {
		return 0, false, ErrClosed
	}
	pos, err := q.client.LPos(ctx, q.listKey, id.String(), redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int(pos) + 1, true, nil
}

func (q *Redis) Len(ctx context.Context) (int, error) {
	if q.closed.Load() {
		return 0, ErrClosed
	}
	n, err := q.client.LLen(ctx, q.listKey).Result()
	return int(n), err
}

func (q *Redis) Processing(ctx context.Context) (uuid.UUID, bool, error) {
	if q.closed.Load() {
		return uuid.Nil, false, ErrClosed
	}
	raw, err := q.client.Get(ctx, q.processingKey).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (q *Redis) Done(ctx context.Context, id uuid.UUID) error {
	if q.closed.Load() {
		return ErrClosed
	}
	return doneScript.Run(ctx, q.client, []string{q.processingKey}, id.String()).Err()
}

// decodeJob rebuilds a job from its payload. A missing payload still
// yields the id so the worker can load the record itself.
func decodeJob(id, payload string) (*Job, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("queued job has invalid id %q", id)
	}
	job := &Job{ID: parsed}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), job); err != nil {
			return nil, fmt.Errorf("queued job %s has invalid payload: %w", id, err)
		}
		job.ID = parsed
	}
	return job, nil
}
