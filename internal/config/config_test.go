package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("ADMIN_SIGNUP_CODE", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.AdminSignupCode != "" {
		t.Fatalf("expected empty ADMIN_SIGNUP_CODE when unset, got %q", cfg.AdminSignupCode)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.CatalogCacheTTLSeconds != 30 {
		t.Fatalf("expected default cache TTL 30, got %d", cfg.CatalogCacheTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "-5")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("malformed TTL should fall back to 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.CatalogCacheTTLSeconds != 30 {
		t.Fatalf("negative cache TTL should fall back to 30, got %d", cfg.CatalogCacheTTLSeconds)
	}
}
