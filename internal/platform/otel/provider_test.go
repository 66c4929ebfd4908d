package otel_test

import (
	"context"
	"testing"

	"github.com/phantom-chat/phantom/internal/platform/otel"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("PHANTOM_OTEL_ENDPOINT", "")
	settings, err := otel.LoadSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if !settings.Enabled || settings.SampleRatio != 1 || settings.Endpoint != "" {
		t.Fatalf("settings = %+v, want enabled with full sampling and no endpoint", settings)
	}
}

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv("PHANTOM_OTEL_ENDPOINT", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	t.Setenv("PHANTOM_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("PHANTOM_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupRejectsInvalidEnv(t *testing.T) {
	t.Setenv("PHANTOM_OTEL_ENABLED", "maybe")

	if _, err := otel.Setup(context.Background(), "test-service"); err == nil {
		t.Fatal("expected invalid bool error")
	}
}

func TestSetupWithSettingsRejectsSampleRatio(t *testing.T) {
	_, err := otel.SetupWithSettings(context.Background(), "test-service", otel.Settings{
		Endpoint:    "http://192.0.2.1:4318",
		Enabled:     true,
		SampleRatio: 1.5,
	})
	if err == nil {
		t.Fatal("expected sample ratio error")
	}
}

func TestSetupWithSettingsCreatesProvider(t *testing.T) {
	// Non-routable address so nothing is exported.
	shutdown, err := otel.SetupWithSettings(context.Background(), "test-service", otel.Settings{
		Endpoint:    "http://192.0.2.1:4318",
		Enabled:     true,
		SampleRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
