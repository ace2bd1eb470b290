package detect

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunHistory is the run-scoped attempt history: state lives in process
// memory and is cleared at the start of each detection run, so attempts
// never accumulate across runs.
type RunHistory struct {
	attempts map[string][]time.Time
}

// NewRunHistory creates an empty run-scoped history.
func NewRunHistory() *RunHistory {
	return &RunHistory{attempts: make(map[string][]time.Time)}
}

// Reset implements AttemptHistory.
func (h *RunHistory) Reset(context.Context) error {
	h.attempts = make(map[string][]time.Time)
	return nil
}

// Record implements AttemptHistory.
func (h *RunHistory) Record(_ context.Context, ip string, t time.Time) error {
	h.attempts[ip] = append(h.attempts[ip], t)
	return nil
}

// IPs implements AttemptHistory.
func (h *RunHistory) IPs(context.Context) ([]string, error) {
	ips := make([]string, 0, len(h.attempts))
	for ip := range h.attempts {
		ips = append(ips, ip)
	}
	return ips, nil
}

// CountSince implements AttemptHistory. Attempts strictly after cutoff
// count as inside the window.
func (h *RunHistory) CountSince(_ context.Context, ip string, cutoff time.Time) (int, error) {
	count := 0
	for _, t := range h.attempts[ip] {
		if t.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// RedisConfig holds connection settings for the persistent attempt
// history.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`
	Retention   time.Duration `yaml:"retention"`
}

// DefaultRedisConfig returns the default Redis history configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "siem:bruteforce",
		Retention:   time.Hour,
	}
}

// RedisHistory keeps a persistent sliding window of attempts in Redis
// sorted sets so an IP's attempts accumulate across detection runs. Reset
// only trims entries older than the retention period; it never clears the
// window.
type RedisHistory struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisHistory connects to Redis and verifies the connection.
func NewRedisHistory(ctx context.Context, cfg RedisConfig) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("detect: redis connect: %w", err)
	}

	return &RedisHistory{client: client, config: cfg}, nil
}

func (h *RedisHistory) attemptsKey(ip string) string {
	return h.config.KeyPrefix + ":attempts:" + ip
}

func (h *RedisHistory) indexKey() string {
	return h.config.KeyPrefix + ":ips"
}

// Reset implements AttemptHistory by trimming expired attempts only.
func (h *RedisHistory) Reset(ctx context.Context) error {
	ips, err := h.client.SMembers(ctx, h.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("detect: redis reset: %w", err)
	}

	oldest := strconv.FormatInt(time.Now().Add(-h.config.Retention).UnixMilli(), 10)
	for _, ip := range ips {
		if err := h.client.ZRemRangeByScore(ctx, h.attemptsKey(ip), "-inf", oldest).Err(); err != nil {
			return fmt.Errorf("detect: redis trim %s: %w", ip, err)
		}
	}
	return nil
}

// Record implements AttemptHistory.
func (h *RedisHistory) Record(ctx context.Context, ip string, t time.Time) error {
	ms := t.UnixMilli()
	member := fmt.Sprintf("%d:%d", ms, time.Now().UnixNano())

	pipe := h.client.TxPipeline()
	pipe.ZAdd(ctx, h.attemptsKey(ip), redis.Z{Score: float64(ms), Member: member})
	pipe.SAdd(ctx, h.indexKey(), ip)
	pipe.Expire(ctx, h.attemptsKey(ip), h.config.Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("detect: redis record %s: %w", ip, err)
	}
	return nil
}

// IPs implements AttemptHistory.
func (h *RedisHistory) IPs(ctx context.Context) ([]string, error) {
	ips, err := h.client.SMembers(ctx, h.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("detect: redis ips: %w", err)
	}
	return ips, nil
}

// CountSince implements AttemptHistory.
func (h *RedisHistory) CountSince(ctx context.Context, ip string, cutoff time.Time) (int, error) {
	min := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	n, err := h.client.ZCount(ctx, h.attemptsKey(ip), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("detect: redis count %s: %w", ip, err)
	}
	return int(n), nil
}

// Close releases the Redis connection.
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
