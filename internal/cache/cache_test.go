package cache

import (
	"context"
	"testing"
	"time"

	"cryptosignals/engine/internal/logging"
)

func newTestLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func TestNew_UnreachableRedisStartsDegraded(t *testing.T) {
	// Port 1 is never a live Redis instance in test environments; New must
	// not block indefinitely or panic, and must report unhealthy.
	s := New(Config{Address: "127.0.0.1:1", DB: 0}, newTestLogger())
	if s.IsHealthy() {
		t.Fatalf("expected degraded mode against an unreachable address")
	}
}

func TestGet_DegradedModeReturnsError(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:1", DB: 0}, newTestLogger())
	_, found, err := s.Get(context.Background(), "any-key")
	if err == nil {
		t.Fatalf("expected an error from a degraded cache, callers must fall back")
	}
	if found {
		t.Fatalf("expected found=false on error")
	}
}

func TestLearningWeightKey_IsDistinctPerBotVersion(t *testing.T) {
	if LearningWeightKey("V4") == LearningWeightKey("V1") {
		t.Fatalf("expected distinct cache keys per bot version")
	}
}

func TestLearningWeightTTL_Is120Seconds(t *testing.T) {
	if LearningWeightTTL != 120*time.Second {
		t.Fatalf("expected learner cache TTL of 120s, got %v", LearningWeightTTL)
	}
}
