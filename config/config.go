package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
)

const (
	DefaultBackendURL = "http://localhost:11434/api/chat"
	DefaultModelName  = "social-media-influencer"
	DefaultServerAddr = ":8000"
	DefaultProvider   = "ollama"
	appDirName        = "social-post-relay"
)

// Config is built once at startup and handed to each component by value.
// Nothing here is validated up front: a missing CMS URL or backend endpoint
// only fails when the first request needs it.
type Config struct {
	WordPress  WordPressConfig
	LLM        LLMConfig
	ServerAddr string
	Blacklist  BlacklistConfig
	Fetch      FetchConfig
}

// WordPressConfig holds the CMS credentials (application password, not the login password).
type WordPressConfig struct {
	URL         string
	Username    string
	AppPassword string
}

// LLMConfig 生成后端配置。
type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

type BlacklistConfig struct {
	Backend string
	Path    string
}

type FetchConfig struct {
	DownloadsDir string
	Mode         string
	BrowserTLS   bool
	AllowPrivate bool
}

// Load reads the process environment. A .env file at dotenvPath is applied
// first without overriding variables that are already set; pass "" to use
// ".env" in the working directory.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	if err := LoadDotEnv(dotenvPath); err != nil {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	dataDir := ReadEnv("DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(xdg.DataHome, appDirName)
	}

	backend := strings.ToLower(ReadEnv("BLACKLIST_BACKEND"))
	if backend == "" {
		backend = "xml"
	}
	blPath := ReadEnv("BLACKLIST_PATH")
	if blPath == "" {
		name := "blacklist.xml"
		if backend == "sqlite" {
			name = "blacklist.db"
		}
		blPath = filepath.Join(dataDir, name)
	}

	downloads := ReadEnv("DOWNLOADS_DIR")
	if downloads == "" {
		downloads = filepath.Join(dataDir, "downloads")
	}

	mode := strings.ToLower(ReadEnv("FETCH_MODE"))
	if mode == "" {
		mode = "text"
	}

	return Config{
		WordPress: WordPressConfig{
			URL:         strings.TrimRight(ReadEnv("WP_URL"), "/"),
			Username:    ReadEnv("WP_USERNAME"),
			AppPassword: ReadEnv("WP_APP_PASSWORD"),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(orDefault(ReadEnv("LLM_PROVIDER"), DefaultProvider)),
			Model:    orDefault(ReadEnv("MODEL_NAME"), DefaultModelName),
			APIKey:   ReadEnv("LLM_API_KEY", "OPENAI_API_KEY"),
			BaseURL:  orDefault(ReadEnv("OPENWEBUI_API_URL"), DefaultBackendURL),
		},
		ServerAddr: orDefault(ReadEnv("SERVER_ADDR"), DefaultServerAddr),
		Blacklist: BlacklistConfig{
			Backend: backend,
			Path:    blPath,
		},
		Fetch: FetchConfig{
			DownloadsDir: downloads,
			Mode:         mode,
			BrowserTLS:   readBool("FETCH_BROWSER_TLS", true),
			AllowPrivate: readBool("FETCH_ALLOW_PRIVATE", false),
		},
	}
}

// ReadEnv returns the first set, non-blank value among keys.
func ReadEnv(keys ...string) string {
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func readBool(key string, def bool) bool {
	raw := ReadEnv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
