package config

import (
	"os"
	"path/filepath"
	"testing"
)

var envKeys = []string{
	"WP_URL", "WP_USERNAME", "WP_APP_PASSWORD", "OPENWEBUI_API_URL", "MODEL_NAME",
	"LLM_PROVIDER", "LLM_API_KEY", "OPENAI_API_KEY", "SERVER_ADDR", "DATA_DIR",
	"BLACKLIST_BACKEND", "BLACKLIST_PATH", "DOWNLOADS_DIR", "FETCH_MODE", "FETCH_BROWSER_TLS", "FETCH_ALLOW_PRIVATE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg := FromEnv()
	if cfg.LLM.BaseURL != DefaultBackendURL {
		t.Errorf("BaseURL = %q, want %q", cfg.LLM.BaseURL, DefaultBackendURL)
	}
	if cfg.LLM.Model != DefaultModelName {
		t.Errorf("Model = %q, want %q", cfg.LLM.Model, DefaultModelName)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", cfg.LLM.Provider)
	}
	if cfg.ServerAddr != ":8000" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Blacklist.Backend != "xml" {
		t.Errorf("Blacklist.Backend = %q", cfg.Blacklist.Backend)
	}
	if want := filepath.Join(dir, "blacklist.xml"); cfg.Blacklist.Path != want {
		t.Errorf("Blacklist.Path = %q, want %q", cfg.Blacklist.Path, want)
	}
	if want := filepath.Join(dir, "downloads"); cfg.Fetch.DownloadsDir != want {
		t.Errorf("DownloadsDir = %q, want %q", cfg.Fetch.DownloadsDir, want)
	}
	if cfg.Fetch.Mode != "text" || !cfg.Fetch.BrowserTLS || cfg.Fetch.AllowPrivate {
		t.Errorf("unexpected fetch config: %+v", cfg.Fetch)
	}
	if cfg.WordPress.URL != "" {
		t.Errorf("WordPress.URL should stay empty when unset, got %q", cfg.WordPress.URL)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WP_URL", "https://blog.example.com/")
	t.Setenv("WP_USERNAME", "editor")
	t.Setenv("WP_APP_PASSWORD", "abcd efgh")
	t.Setenv("MODEL_NAME", "llama3")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("BLACKLIST_BACKEND", "sqlite")
	t.Setenv("DATA_DIR", "/var/lib/relay")
	t.Setenv("FETCH_BROWSER_TLS", "false")
	t.Setenv("FETCH_ALLOW_PRIVATE", "1")
	t.Setenv("FETCH_MODE", "Article")

	cfg := FromEnv()
	if cfg.WordPress.URL != "https://blog.example.com" {
		t.Errorf("trailing slash not trimmed: %q", cfg.WordPress.URL)
	}
	if cfg.WordPress.AppPassword != "abcd efgh" {
		t.Errorf("AppPassword = %q", cfg.WordPress.AppPassword)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "llama3" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Blacklist.Path != filepath.Join("/var/lib/relay", "blacklist.db") {
		t.Errorf("sqlite path = %q", cfg.Blacklist.Path)
	}
	if !cfg.Fetch.AllowPrivate {
		t.Error("FETCH_ALLOW_PRIVATE=1 ignored")
	}
	if cfg.Fetch.BrowserTLS {
		t.Error("FETCH_BROWSER_TLS=false ignored")
	}
	if cfg.Fetch.Mode != "article" {
		t.Errorf("Mode = %q", cfg.Fetch.Mode)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_NAME", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nMODEL_NAME=from-file\nexport WP_URL=\"https://wp.test\"\nBROKEN LINE\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("Model = %q, want from-env", cfg.LLM.Model)
	}
	if cfg.WordPress.URL != "https://wp.test" {
		t.Errorf("WP_URL = %q", cfg.WordPress.URL)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
