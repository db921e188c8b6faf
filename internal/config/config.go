// Package config resolves portal client settings from the YAML settings file,
// a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobportal/internal/logging"
	"jobportal/internal/model"
	"jobportal/internal/portal"
	"jobportal/internal/runstore"
)

const (
	DefaultDir            = ".jobportal"
	ConfigFileName        = "config.yaml"
	DefaultBaseURL        = "http://localhost:8080/api"
	DefaultDebounce       = 300 * time.Millisecond
	DefaultRequestTimeout = 15 * time.Second
	DefaultFetchTimeout   = 20 * time.Second

	EnvBaseURL        = "PORTAL_BASE_URL"
	EnvToken          = "PORTAL_TOKEN"
	EnvPageSize       = "PORTAL_PAGE_SIZE"
	EnvDebounce       = "PORTAL_DEBOUNCE"
	EnvRequestTimeout = "PORTAL_REQUEST_TIMEOUT"
	EnvFetchTimeout   = "PORTAL_FETCH_TIMEOUT"
	EnvLogLevel       = "PORTAL_LOG_LEVEL"
)

type Settings struct {
	BaseURL        string        `yaml:"base_url,omitempty" json:"base_url"`
	Token          string        `yaml:"token,omitempty" json:"-"`
	PageSize       int           `yaml:"page_size,omitempty" json:"page_size"`
	Debounce       time.Duration `yaml:"debounce,omitempty" json:"debounce"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" json:"request_timeout"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout,omitempty" json:"fetch_timeout"`
	LogLevel       string        `yaml:"log_level,omitempty" json:"log_level"`
	UpdatedAt      string        `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

func (s Settings) HasToken() bool {
	return strings.TrimSpace(s.Token) != ""
}

func Defaults() Settings {
	return Settings{
		BaseURL:        DefaultBaseURL,
		PageSize:       model.DefaultPageSize,
		Debounce:       DefaultDebounce,
		RequestTimeout: DefaultRequestTimeout,
		FetchTimeout:   DefaultFetchTimeout,
		LogLevel:       logging.DefaultLevel,
	}
}

func normalize(raw Settings) Settings {
	norm := raw
	norm.BaseURL = strings.TrimRight(strings.TrimSpace(norm.BaseURL), "/")
	if norm.BaseURL == "" {
		norm.BaseURL = DefaultBaseURL
	}
	norm.Token = strings.TrimSpace(norm.Token)
	switch {
	case norm.PageSize <= 0:
		norm.PageSize = model.DefaultPageSize
	case norm.PageSize > model.MaxPageSize:
		norm.PageSize = model.MaxPageSize
	}
	if norm.Debounce <= 0 {
		norm.Debounce = DefaultDebounce
	}
	if norm.RequestTimeout <= 0 {
		norm.RequestTimeout = DefaultRequestTimeout
	}
	if norm.FetchTimeout <= 0 {
		norm.FetchTimeout = DefaultFetchTimeout
	}
	norm.LogLevel = strings.ToLower(strings.TrimSpace(norm.LogLevel))
	if norm.LogLevel == "" {
		norm.LogLevel = logging.DefaultLevel
	}
	return norm
}

func Validate(s Settings) error {
	if _, err := portal.ParseBaseURL(s.BaseURL); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

func ConfigPath(dir string) string {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, ConfigFileName)
}

// Read returns the settings stored at path with defaults applied. A missing
// file yields the defaults.
func Read(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return normalize(s), nil
}

func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	// the file may carry the bearer token
	return runstore.WriteBytes(path, data, 0o600)
}

type LoadOptions struct {
	Dir string
	// EnvFile defaults to ".env"; a missing file is ignored.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves the effective settings. The process environment wins over
// .env, which wins over the settings file.
func Load(opts LoadOptions) (Settings, error) {
	s, err := Read(ConfigPath(opts.Dir))
	if err != nil {
		return Settings{}, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("read %s: %w", envFile, err)
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		if v, ok := lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(dotenv[key])
	}

	if v := get(EnvBaseURL); v != "" {
		s.BaseURL = v
	}
	if v := get(EnvToken); v != "" {
		s.Token = v
	}
	if v := get(EnvPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s: %w", EnvPageSize, err)
		}
		s.PageSize = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{EnvDebounce, &s.Debounce},
		{EnvRequestTimeout, &s.RequestTimeout},
		{EnvFetchTimeout, &s.FetchTimeout},
	} {
		v := get(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if v := get(EnvLogLevel); v != "" {
		s.LogLevel = v
	}

	s = normalize(s)
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// UpdateOptions changes only the fields that are set. An empty Token string
// clears the stored token.
type UpdateOptions struct {
	Dir            string
	BaseURL        *string
	Token          *string
	PageSize       *int
	Debounce       *time.Duration
	RequestTimeout *time.Duration
	FetchTimeout   *time.Duration
	LogLevel       *string
}

type UpdateResult struct {
	ConfigPath string   `json:"config_path"`
	Settings   Settings `json:"settings"`
}

func Update(opts UpdateOptions) (UpdateResult, error) {
	path := ConfigPath(opts.Dir)
	s, err := Read(path)
	if err != nil {
		return UpdateResult{}, err
	}

	if opts.BaseURL != nil {
		s.BaseURL = *opts.BaseURL
	}
	if opts.Token != nil {
		s.Token = *opts.Token
	}
	if opts.PageSize != nil {
		if *opts.PageSize < 1 || *opts.PageSize > model.MaxPageSize {
			return UpdateResult{}, fmt.Errorf("page size must be between 1 and %d", model.MaxPageSize)
		}
		s.PageSize = *opts.PageSize
	}
	if opts.Debounce != nil {
		if *opts.Debounce <= 0 {
			return UpdateResult{}, fmt.Errorf("debounce must be > 0")
		}
		s.Debounce = *opts.Debounce
	}
	if opts.RequestTimeout != nil {
		if *opts.RequestTimeout <= 0 {
			return UpdateResult{}, fmt.Errorf("request timeout must be > 0")
		}
		s.RequestTimeout = *opts.RequestTimeout
	}
	if opts.FetchTimeout != nil {
		if *opts.FetchTimeout <= 0 {
			return UpdateResult{}, fmt.Errorf("fetch timeout must be > 0")
		}
		s.FetchTimeout = *opts.FetchTimeout
	}
	if opts.LogLevel != nil {
		s.LogLevel = *opts.LogLevel
	}

	s = normalize(s)
	if err := Validate(s); err != nil {
		return UpdateResult{}, err
	}
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := Save(path, s); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{ConfigPath: path, Settings: s}, nil
}
