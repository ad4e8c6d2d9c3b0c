package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const DefaultItemDescription = `{{.Name}} has been tagged in the repository. Browse it at {{.Link}}`

type Config struct {
	RepositoryURL   string `koanf:"repository_url"`
	CachePath       string `koanf:"cache_path"`
	CacheName       string `koanf:"cache_name"`
	StorageDSN      string `koanf:"storage_dsn"`
	FetchTimeout    int    `koanf:"fetch_timeout"`
	RefreshInterval int    `koanf:"refresh_interval"`
	CacheTTL        int    `koanf:"cache_ttl"`
	MaxItems        int    `koanf:"max_items"`
	ItemDescription string `koanf:"item_description"`

	FeedTitle          string `koanf:"feed_title"`
	FeedDescription    string `koanf:"feed_description"`
	FeedLink           string `koanf:"feed_link"`
	FeedSyndicationURL string `koanf:"feed_syndication_url"`
	FeedAuthor         string `koanf:"feed_author"`
	FeedAuthorEmail    string `koanf:"feed_author_email"`
	FeedEditor         string `koanf:"feed_editor"`
	FeedEditorEmail    string `koanf:"feed_editor_email"`

	HTTPPort string `koanf:"http_port"`
	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`

	TelegramBotToken string `koanf:"telegram_bot_token"`
	TelegramAPIURL   string `koanf:"telegram_api_url"`
	TelegramChatID   string `koanf:"telegram_chat_id"`

	FeedFormat     domain.Format         `koanf:"-"`
	PublishMode    domain.PublishMode    `koanf:"-"`
	StorageBackend domain.StorageBackend `koanf:"-"`
	AppEnv         domain.AppEnv         `koanf:"-"`
}

// Load reads the first config file found in the working directory, then
// the environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path falls back
// to config.{yaml,yml,json,toml} in the working directory.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	configFile := path
	found := path != ""
	if !found {
		configFiles := []string{
			"config.yaml",
			"config.yml",
			"config.json",
			"config.toml",
		}

		configFile, found = lo.Find(configFiles, func(file string) bool {
			_, err := os.Stat(file)
			return err == nil
		})
	}

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// Environment variables override config file values
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	defaults := map[string]any{
		"cache_path":       filepath.Join(xdg.CacheHome, "tag-feed"),
		"cache_name":       "rss20.cache",
		"storage_backend":  "file",
		"fetch_timeout":    20,
		"refresh_interval": 3600,
		"cache_ttl":        0,
		"max_items":        4,
		"item_description": DefaultItemDescription,
		"feed_title":       "Release feed",
		"feed_description": "Recently tagged releases",
		"feed_format":      "rss",
		"publish_mode":     "request",
		"http_port":        "8080",
		"log_level":        "info",
		"telegram_api_url": "https://api.telegram.org",
		"app_env":          "production",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	var err error
	if cfg.FeedFormat, err = domain.ParseFormat(k.String("feed_format")); err != nil {
		return nil, oops.With("feed_format", k.String("feed_format")).Wrap(err)
	}
	if cfg.PublishMode, err = domain.ParsePublishMode(k.String("publish_mode")); err != nil {
		return nil, oops.With("publish_mode", k.String("publish_mode")).Wrap(err)
	}
	if cfg.StorageBackend, err = domain.ParseStorageBackend(k.String("storage_backend")); err != nil {
		return nil, oops.With("storage_backend", k.String("storage_backend")).Wrap(err)
	}
	if env, err := domain.ParseAppEnv(k.String("app_env")); err == nil {
		cfg.AppEnv = env
	} else {
		cfg.AppEnv = domain.AppEnvProduction
	}

	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 4
	}
	if cfg.FeedAuthorEmail != "" && cfg.FeedEditorEmail == "" {
		cfg.FeedEditorEmail = cfg.FeedAuthorEmail
	}
	if cfg.FeedAuthor != "" && cfg.FeedEditor == "" {
		cfg.FeedEditor = cfg.FeedAuthor
	}
	if cfg.FeedLink == "" {
		cfg.FeedLink = cfg.RepositoryURL
	}

	if cfg.RepositoryURL == "" {
		return nil, errors.ErrMissingRepositoryURL
	}

	return &cfg, nil
}

// FeedMetadata returns the static feed-level metadata
func (c *Config) FeedMetadata() domain.Metadata {
	return domain.Metadata{
		Title:          c.FeedTitle,
		Description:    c.FeedDescription,
		Link:           c.FeedLink,
		SyndicationURL: c.FeedSyndicationURL,
		Author:         c.FeedAuthor,
		AuthorEmail:    c.FeedAuthorEmail,
		Editor:         c.FeedEditor,
		EditorEmail:    c.FeedEditorEmail,
	}
}

func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

func (c *Config) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// TelegramEnabled reports whether release announcements are configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}
