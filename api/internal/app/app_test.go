package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"physics-tutor/api/internal/config"
	"physics-tutor/api/internal/logger"
)

func TestBuildEnginesOnlyWithKeys(t *testing.T) {
	cfg := &config.Config{GroqAPIKey: "g", GroqModel: "llama", DeepseekAPIKey: "d", DeepseekModel: "deepseek-chat"}
	got := strings.Join(BuildEngines(cfg).Names(), ",")
	if got != "deepseek,groq" {
		t.Fatalf("Names = %q", got)
	}
}

func TestBuildWithoutDiagrams(t *testing.T) {
	cfg := &config.Config{TextEngine: "groq", GroqAPIKey: "g", GroqModel: "llama"}
	d, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer d.Close()
	if d.Default.Name() != "groq" || d.Diagrams != nil {
		t.Fatalf("unexpected deps: default=%s diagrams=%v", d.Default.Name(), d.Diagrams)
	}
	if err := d.Health(context.Background()); err != nil {
		t.Fatalf("Health without db: %v", err)
	}
	if d.NewTutor(nil).EngineName() != "groq (llama)" {
		t.Fatalf("EngineName = %q", d.NewTutor(nil).EngineName())
	}
}

func TestBuildMemoryCacheDiagrams(t *testing.T) {
	cfg := &config.Config{TextEngine: "gpt", OpenAIAPIKey: "sk", Diagrams: true, DiagramCache: "memory"}
	d, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Diagrams == nil {
		t.Fatalf("diagrams should be wired")
	}
}

func TestBuildUnknownDefault(t *testing.T) {
	cfg := &config.Config{TextEngine: "gemini", GroqAPIKey: "g"}
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for an engine without a key")
	}
}

func TestSafeDSNSummary(t *testing.T) {
	got := SafeDSNSummary("postgres://tutor:secret@db:5432/tutor?sslmode=disable")
	if got != "host=db port=5432 db=tutor user=tutor" || strings.Contains(got, "secret") {
		t.Fatalf("SafeDSNSummary = %q", got)
	}
}

func TestHealthRunsCacheChecks(t *testing.T) {
	d := &Deps{Log: logger.Nop()}
	if err := d.Health(context.Background()); err != nil {
		t.Fatalf("Health without cache: %v", err)
	}
	down := errors.New("redis: connection refused")
	d.checks = append(d.checks, func(context.Context) error { return nil }, func(context.Context) error { return down })
	if err := d.Health(context.Background()); !errors.Is(err, down) {
		t.Fatalf("Health = %v, want %v", err, down)
	}
}

func TestEveryRunsUntilClosed(t *testing.T) {
	d := &Deps{Log: logger.Nop()}
	var calls atomic.Int32
	d.closers = append(d.closers, d.every(time.Millisecond, "purge", func(context.Context) error {
		calls.Add(1)
		return errors.New("db gone")
	}))

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("purge ran %d times", calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	d.Close()
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != n {
		t.Fatalf("purge kept running after Close")
	}
}
