package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNew_UnlimitedInTests(t *testing.T) {
	l := New(map[API]Quota{
		APICoinGecko: {PerMinute: 1, Burst: 1},
	})

	// A 1/minute quota would block after the first call outside of tests
	for i := 0; i < 10; i++ {
		if !l.Allow(APICoinGecko) {
			t.Fatalf("Allow() = false on call %d, want unlimited in test mode", i)
		}
	}
}

func TestWait_UnknownAPI(t *testing.T) {
	l := New(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, API("unknown")); err != nil {
		t.Errorf("Wait() returned unexpected error: %v", err)
	}
	if !l.Allow(API("unknown")) {
		t.Error("Allow() = false for an API without a limiter")
	}
}

func TestWait_ConfiguredAPI(t *testing.T) {
	l := New(map[API]Quota{APICoinGecko: {PerMinute: 50, Burst: 5}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := l.Wait(ctx, APICoinGecko); err != nil {
			t.Fatalf("Wait() returned unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Wait() took %v in test mode, expected no throttling", elapsed)
	}
}

func TestIsTestMode(t *testing.T) {
	if !isTestMode() {
		t.Error("isTestMode() = false inside go test")
	}
}
