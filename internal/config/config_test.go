package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultMarginFallsBack(t *testing.T) {
	t.Setenv("DEFAULT_MARGIN_PERCENT", "not-a-number")

	cfg := Load()
	if cfg.DefaultMarginPercent != 20 {
		t.Fatalf("expected default margin 20, got %v", cfg.DefaultMarginPercent)
	}
}
