package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer grants a single writer per (instance, task).
//
// Acquire takes a pending claim for lease, or fails with
// ErrCompletionInProgress (pending claim held) or ErrAlreadyCompleted
// (completed within ttl). Release drops a pending claim owned by owner.
// Complete turns owner's pending claim into a completed one kept for ttl.
type Claimer interface {
	Acquire(ctx context.Context, key, owner string) error
	Release(ctx context.Context, key, owner string) error
	Complete(ctx context.Context, key, owner string) error
}

// ClaimKey identifies a task inside an instance.
func ClaimKey(instanceID, taskID string) string {
	return instanceID + "/" + taskID
}

type claimState int

const (
	claimPending claimState = iota
	claimDone
)

type claim struct {
	owner   string
	state   claimState
	expires time.Time
}

// MemoryClaimer keeps claims in process memory.
type MemoryClaimer struct {
	lease time.Duration
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	claims map[string]claim
}

// NewMemoryClaimer creates a claimer with the given pending lease and completed ttl.
func NewMemoryClaimer(lease, ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{
		lease:  lease,
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]claim),
	}
}

func (m *MemoryClaimer) Acquire(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if c, ok := m.claims[key]; ok && now.Before(c.expires) {
		if c.state == claimDone {
			return ErrAlreadyCompleted
		}
		return ErrCompletionInProgress
	}
	m.claims[key] = claim{owner: owner, state: claimPending, expires: now.Add(m.lease)}
	m.sweep(now)
	return nil
}

func (m *MemoryClaimer) Release(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[key]; ok && c.owner == owner && c.state == claimPending {
		delete(m.claims, key)
	}
	return nil
}

func (m *MemoryClaimer) Complete(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[key] = claim{owner: owner, state: claimDone, expires: m.now().Add(m.ttl)}
	return nil
}

// sweep drops expired claims. Caller holds m.mu.
func (m *MemoryClaimer) sweep(now time.Time) {
	for k, c := range m.claims {
		if !now.Before(c.expires) {
			delete(m.claims, k)
		}
	}
}

const (
	pendingPrefix = "pending:"
	donePrefix    = "done:"
)

var (
	// KEYS[1] claim key; ARGV[1] pending owner value; ARGV[2] done owner value; ARGV[3] ttl ms
	claimCompleteLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[1] then
	return 0
end
redis.call('PSETEX', KEYS[1], tonumber(ARGV[3]), ARGV[2])
return 1
`)

	// KEYS[1] claim key; ARGV[1] pending owner value
	claimReleaseLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// RedisClaimer keeps claims in Redis so that every gateway replica shares them.
type RedisClaimer struct {
	client redis.Cmdable
	prefix string
	lease  time.Duration
	ttl    time.Duration
}

// NewRedisClaimer creates a claimer storing keys under prefix.
func NewRedisClaimer(client redis.Cmdable, prefix string, lease, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{client: client, prefix: prefix, lease: lease, ttl: ttl}
}

func (r *RedisClaimer) key(k string) string { return r.prefix + k }

func (r *RedisClaimer) Acquire(ctx context.Context, key, owner string) error {
	// a claim expiring between SETNX and GET gets a second SETNX
	for attempt := 0; ; attempt++ {
		ok, err := r.client.SetNX(ctx, r.key(key), pendingPrefix+owner, r.lease).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		cur, err := r.client.Get(ctx, r.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			if attempt == 0 {
				continue
			}
			return ErrCompletionInProgress
		}
		if err != nil {
			return err
		}
		if strings.HasPrefix(cur, donePrefix) {
			return ErrAlreadyCompleted
		}
		return ErrCompletionInProgress
	}
}

func (r *RedisClaimer) Release(ctx context.Context, key, owner string) error {
	return claimReleaseLua.Run(ctx, r.client, []string{r.key(key)}, pendingPrefix+owner).Err()
}

func (r *RedisClaimer) Complete(ctx context.Context, key, owner string) error {
	res, err := claimCompleteLua.Run(ctx, r.client, []string{r.key(key)},
		pendingPrefix+owner, donePrefix+owner, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}
