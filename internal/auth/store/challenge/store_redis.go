package challenge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"custody/internal/auth/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

const (
	challengeKeyPrefix = "otp:challenge:"
	// Keys outlive their expiry so a late attempt reports expired rather
	// than missing.
	retentionGrace = time.Hour
)

// consumeScript is the compare-and-delete. Replies:
// {0} missing, {1} expired (deleted), {2} mismatch (kept), {3, principal_id, expires_at} consumed,
// {4} mismatch on the last allowed attempt (deleted).
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'code', 'expires_at', 'principal_id')
if not v[1] then
  return {0}
end
if tonumber(ARGV[2]) > tonumber(v[2]) then
  redis.call('DEL', KEYS[1])
  return {1}
end
if v[1] ~= ARGV[1] then
  if redis.call('HINCRBY', KEYS[1], 'attempts', 1) >= tonumber(ARGV[3]) then
    redis.call('DEL', KEYS[1])
    return {4}
  end
  return {2}
end
redis.call('DEL', KEYS[1])
return {3, v[3], v[2]}
`)

// RedisChallengeStore keeps pending challenges in Redis hashes so every
// instance sees the same single valid code.
type RedisChallengeStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func challengeKey(identity string) string {
	return challengeKeyPrefix + identity
}

func (s *RedisChallengeStore) Put(ctx context.Context, c *models.PendingChallenge) error {
	key := challengeKey(c.Identity)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"code", c.Code,
		"expires_at", strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10),
		"principal_id", c.PrincipalID.String(),
		"attempts", strconv.Itoa(c.Attempts),
	)
	pipe.PExpireAt(ctx, key, c.ExpiresAt.Add(retentionGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, identity, code string, now time.Time) (*models.PendingChallenge, error) {
	reply, err := consumeScript.Run(ctx, s.client, []string{challengeKey(identity)}, code, now.UnixMilli(), models.MaxOTPAttempts).Slice()
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	if len(reply) == 0 {
		return nil, fmt.Errorf("consume challenge: empty reply")
	}
	status, _ := reply[0].(int64)
	switch status {
	case 0:
		return nil, sentinel.ErrNotFound
	case 1:
		return nil, sentinel.ErrExpired
	case 2:
		return nil, sentinel.ErrMismatch
	case 3:
		return decodeConsumed(identity, code, reply)
	case 4:
		return nil, sentinel.ErrExhausted
	default:
		return nil, fmt.Errorf("consume challenge: unexpected status %d", status)
	}
}

func decodeConsumed(identity, code string, reply []any) (*models.PendingChallenge, error) {
	if len(reply) != 3 {
		return nil, fmt.Errorf("consume challenge: malformed reply")
	}
	rawPrincipal, _ := reply[1].(string)
	rawExpiry, _ := reply[2].(string)
	principalID, err := uuid.Parse(rawPrincipal)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: bad principal id: %w", err)
	}
	expiresMs, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: bad expiry: %w", err)
	}
	return &models.PendingChallenge{
		Identity:    identity,
		PrincipalID: id.PrincipalID(principalID),
		Code:        code,
		ExpiresAt:   time.UnixMilli(expiresMs).UTC(),
	}, nil
}
