// Package cache provides Redis-backed caching with graceful degradation:
// when Redis is unavailable, callers fall back to recomputing/refetching
// rather than failing. Scoped down to its two consumers: the Adaptive
// Learner's 120s weight cache and the Sentiment Provider's cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptosignals/engine/internal/logging"
)

// Service wraps a Redis client with a health-tracking /
// graceful-degradation pattern: a failure count trips a circuit breaker,
// opening it for `checkInterval` before the next health probe.
type Service struct {
	client *redis.Client
	log    *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// Config holds the Redis connection fields.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// New connects to Redis and returns a degraded-mode Service if the initial
// ping fails rather than erroring out — callers must still be constructed
// successfully so the bot can run with caching disabled.
func New(cfg Config, log *logging.Logger) *Service {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		log:           log,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("initial redis connection failed, starting in degraded mode", "error", err)
		return s
	}

	s.healthy = true
	s.lastCheck = time.Now()
	log.Info("redis connected", "address", cfg.Address)
	return s
}

func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.log.Warn("redis circuit breaker opened", "failures", s.failureCount)
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.log.Info("redis circuit breaker closed, connection recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

func (s *Service) checkHealth() {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !shouldCheck {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.recordSuccess()
		}
	}()
}

// Get returns the raw cached string, or (false, nil) on a cache miss.
// Returns an error only when Redis itself is unreachable (degraded mode),
// which callers should treat as "recompute", not as a failure.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	s.checkHealth()
	if !s.IsHealthy() {
		return "", false, fmt.Errorf("cache: redis unavailable (circuit open)")
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		s.recordFailure()
		return "", false, fmt.Errorf("cache: get failed: %w", err)
	}
	s.recordSuccess()
	return val, true, nil
}

// Set stores a JSON-marshalled value with the given TTL.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.checkHealth()
	if !s.IsHealthy() {
		return fmt.Errorf("cache: redis unavailable (circuit open)")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("cache: set failed: %w", err)
	}
	s.recordSuccess()
	return nil
}

// GetJSON is a convenience wrapper over Get that unmarshals into dest. It
// returns (false, nil) on a miss and (false, err) with Get's error when
// the cache is degraded or the read fails; either way callers fall back
// to recomputing from the database.
func (s *Service) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("cache: unmarshal: %w", err)
	}
	return true, nil
}

// LearningWeightTTL is the Adaptive Learner's weight-snapshot cache lifetime.
const LearningWeightTTL = 120 * time.Second

// LearningWeightKey builds the cache key for one bot version's learning
// weight snapshot.
func LearningWeightKey(botVersion string) string {
	return fmt.Sprintf("learner:%s:weights", botVersion)
}

// SentimentTTL is the Sentiment Provider's cache lifetime.
const SentimentTTL = 15 * time.Minute

func SentimentKey() string {
	return "sentiment:global"
}
