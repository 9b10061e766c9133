package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockHeld is returned when another request is working on the interview
var ErrLockHeld = errors.New("interview lock held")

// releaseScript deletes the key only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InterviewLock serialises read-modify-write cycles on one interview across
// server instances.
type InterviewLock interface {
	Acquire(ctx context.Context, interviewID string) (release func(), err error)
}

type interviewLock struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewInterviewLock creates a redis-backed interview lock
func NewInterviewLock(client *redis.Client, ttl time.Duration, logger zerolog.Logger) InterviewLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &interviewLock{
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "interview_lock").Logger(),
	}
}

func (l *interviewLock) key(interviewID string) string {
	return fmt.Sprintf("interview:%s:lock", interviewID)
}

func (l *interviewLock) Acquire(ctx context.Context, interviewID string) (func(), error) {
	token := uuid.NewString()
	key := l.key(interviewID)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return l.releaser(interviewID, token), nil
}

// releaser returns a func deleting the lock if token still holds it. A
// failed release leaves the key to expire after the ttl.
func (l *interviewLock) releaser(interviewID, token string) func() {
	key := l.key(interviewID)
	return func() {
		// The caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("interview", interviewID).Dur("ttl", l.ttl).Msg("release interview lock failed")
		}
	}
}
