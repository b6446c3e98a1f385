package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/basket/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestStoreConfig_UnknownDriver(t *testing.T) {
	cfg := StoreConfig{Driver: "postgres", Path: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown driver should fail validation")
	}
}

func TestOptimizerConfig_RequiresURL(t *testing.T) {
	cfg := OptimizerConfig{URL: "not a url"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid url should fail validation")
	}
	cfg = OptimizerConfig{URL: "https://optimizer.example.com/v1/optimize", RatePerSecond: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative rate should fail validation")
	}
}

func TestDraftsConfig_DebounceBounds(t *testing.T) {
	cfg := DraftsConfig{PersistDebounce: 2 * time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("debounce above a minute should fail validation")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("BASKET_TEST_TOKEN", "s3cret")
	data := `app:
  log_level: debug
  http:
    port: 9090
store:
  driver: badger
  path: ./data
optimizer:
  url: https://optimizer.example.com/v1/optimize
  token: ${BASKET_TEST_TOKEN}
  timeout: 5s
drafts:
  persist_debounce: 500ms
auth:
  mode: token
  token: api-token
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Store.Driver != "badger" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Optimizer.Token != "s3cret" || cfg.Optimizer.Timeout != 5*time.Second {
		t.Errorf("optimizer = %+v", cfg.Optimizer)
	}
	if cfg.Optimizer.RatePerSecond != 2 {
		t.Errorf("unset rate should keep default, got %v", cfg.Optimizer.RatePerSecond)
	}
	if cfg.Drafts.PersistDebounce != 500*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Drafts.PersistDebounce)
	}
	if !cfg.Auth.AuthEnabled() {
		t.Error("auth should be enabled")
	}
}
