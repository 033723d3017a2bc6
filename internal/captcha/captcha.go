package captcha

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "captcha:"
	alphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Validator checks a captcha answer supplied with a request.
type Validator interface {
	Check(ctx context.Context, sessionID, answer string) (bool, error)
}

// RedisStore issues one-time captcha codes bound to a session and checks answers against them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	length int
}

// NewRedisStore builds a captcha store. Codes expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl, length: 4}
}

// Issue generates a new code for sessionID, replacing any previous one.
// The worker only checks answers; the front end that renders captchas calls Issue.
func (s *RedisStore) Issue(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("captcha: session id is required")
	}

	code, err := randomCode(s.length)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, keyPrefix+sessionID, strings.ToLower(code), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store captcha: %w", err)
	}
	return code, nil
}

// Check compares answer with the code issued for sessionID. A code can be checked once.
func (s *RedisStore) Check(ctx context.Context, sessionID, answer string) (bool, error) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if sessionID == "" || answer == "" {
		return false, nil
	}

	expected, err := s.client.GetDel(ctx, keyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load captcha: %w", err)
	}

	return expected == answer, nil
}

func randomCode(length int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate captcha: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
