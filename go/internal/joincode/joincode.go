// Package joincode allocates the short codes players type to find a pending
// game, and indexes them in Redis.
package joincode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	Length = 6
	// no 0/O or 1/I
	alphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	keyPrefix = "joincode:"
	// gameKeyPrefix maps a game back to its code so it can be released
	// when the game leaves the lobby.
	gameKeyPrefix = "joincode:game:"
)

var ErrUnknownCode = errors.New("unknown join code")

// Generate returns a random code of Length characters.
func Generate() (string, error) {
	buf := make([]byte, Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate join code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Valid reports whether code has the shape Generate produces.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		found := false
		for j := 0; j < len(alphabet); j++ {
			if code[i] == alphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RedisRegistry maps codes to game ids with a TTL so codes of abandoned
// lobbies eventually become reusable.
type RedisRegistry struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisRegistry(rdb redis.Cmdable, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, ttl: ttl}
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Reserve claims code for gameID. It reports false when the code is taken.
func (r *RedisRegistry) Reserve(ctx context.Context, code string, gameID uuid.UUID) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, keyPrefix+code, gameID.String(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve join code: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := r.rdb.Set(ctx, gameKeyPrefix+gameID.String(), code, r.ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to index join code by game: %w", err)
	}
	return true, nil
}

func (r *RedisRegistry) Resolve(ctx context.Context, code string) (uuid.UUID, error) {
	v, err := r.rdb.Get(ctx, keyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrUnknownCode
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve join code: %w", err)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt join code entry %q: %w", code, err)
	}
	return id, nil
}

func (r *RedisRegistry) Release(ctx context.Context, code string) error {
	keys := []string{keyPrefix + code}
	v, err := r.rdb.Get(ctx, keyPrefix+code).Result()
	switch {
	case err == nil:
		keys = append(keys, gameKeyPrefix+v)
	case !errors.Is(err, redis.Nil):
		return fmt.Errorf("failed to release join code: %w", err)
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to release join code: %w", err)
	}
	return nil
}

// ReleaseGame frees whatever code gameID holds. A game without a code is
// not an error.
func (r *RedisRegistry) ReleaseGame(ctx context.Context, gameID uuid.UUID) error {
	gameKey := gameKeyPrefix + gameID.String()
	code, err := r.rdb.Get(ctx, gameKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up join code of game %s: %w", gameID, err)
	}
	if err := r.rdb.Del(ctx, keyPrefix+code, gameKey).Err(); err != nil {
		return fmt.Errorf("failed to release join code of game %s: %w", gameID, err)
	}
	return nil
}
