package config

import (
	"context"
	"errors"
	"testing"

	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer"
	"github.com/haneul-dev/cribwatch/pkg/provider/speech"
	"github.com/haneul-dev/cribwatch/pkg/provider/vision"
)

func TestLogLevel_IsValid(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  bool
	}{
		{LogDebug, true},
		{LogInfo, true},
		{LogWarn, true},
		{LogError, true},
		{"verbose", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := tc.level.IsValid(); got != tc.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tc.level, got, tc.want)
		}
	}
}

type stubVision struct{}

func (stubVision) Generate(context.Context, string, vision.MediaRef) (string, error) {
	return "", nil
}
func (stubVision) Close() error { return nil }

type stubSpeech struct{}

func (stubSpeech) Synthesize(context.Context, string) ([]byte, error) { return nil, nil }
func (stubSpeech) Close() error                                       { return nil }

type stubPlayer struct{}

func (stubPlayer) Play(context.Context, string) error { return nil }
func (stubPlayer) Close() error                       { return nil }

func TestRegistry_CreateVision(t *testing.T) {
	r := NewRegistry()
	r.RegisterVision("gemini", func(e ProviderEntry) (vision.Provider, error) {
		if e.Model != "test-model" {
			t.Errorf("factory got Model = %q, want %q", e.Model, "test-model")
		}
		return stubVision{}, nil
	})

	p, err := r.CreateVision(ProviderEntry{Name: "gemini", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateVision: %v", err)
	}
	if p == nil {
		t.Fatal("CreateVision returned nil provider")
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	r := NewRegistry()

	if _, err := r.CreateVision(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateVision error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSpeech(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSpeech error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreatePlayer(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreatePlayer error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwritesRegistration(t *testing.T) {
	r := NewRegistry()
	r.RegisterSpeech("google", func(ProviderEntry) (speech.Provider, error) {
		t.Error("old factory should not be called")
		return stubSpeech{}, nil
	})
	r.RegisterSpeech("google", func(ProviderEntry) (speech.Provider, error) {
		return stubSpeech{}, nil
	})

	if _, err := r.CreateSpeech(ProviderEntry{Name: "google"}); err != nil {
		t.Fatalf("CreateSpeech: %v", err)
	}
}

func TestRegistry_CreatePlayer(t *testing.T) {
	r := NewRegistry()
	r.RegisterPlayer("mock", func(ProviderEntry) (audioplayer.Player, error) {
		return stubPlayer{}, nil
	})

	p, err := r.CreatePlayer(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if p == nil {
		t.Fatal("CreatePlayer returned nil player")
	}
}
