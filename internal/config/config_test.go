package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestReadDefaultsWhenConfigMissing(t *testing.T) {
	s, err := Read(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("read settings failed: %v", err)
	}
	if s != Defaults() {
		t.Fatalf("defaults mismatch: got %+v want %+v", s, Defaults())
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(ConfigPath(dir), []byte("base_url: http://file.example/api/\npage_size: 25\ndebounce: 150ms\ntoken: file-token\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PORTAL_TOKEN=dotenv-token\nPORTAL_FETCH_TIMEOUT=5s\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	s, err := Load(LoadOptions{
		Dir:       dir,
		EnvFile:   envFile,
		LookupEnv: mapEnv(map[string]string{EnvPageSize: "500", EnvLogLevel: "DEBUG"}),
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.BaseURL != "http://file.example/api" {
		t.Fatalf("base url mismatch: got %q", s.BaseURL)
	}
	if s.Token != "dotenv-token" {
		t.Fatalf("token should come from .env: got %q", s.Token)
	}
	if s.PageSize != 100 {
		t.Fatalf("page size should clamp to 100: got %d", s.PageSize)
	}
	if s.Debounce != 150*time.Millisecond {
		t.Fatalf("debounce mismatch: got %v", s.Debounce)
	}
	if s.FetchTimeout != 5*time.Second {
		t.Fatalf("fetch timeout mismatch: got %v", s.FetchTimeout)
	}
	if s.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("request timeout should default: got %v", s.RequestTimeout)
	}
	if s.LogLevel != "debug" {
		t.Fatalf("log level mismatch: got %q", s.LogLevel)
	}
}

func TestLoadProcessEnvWinsOverDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PORTAL_TOKEN=dotenv-token\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvToken, "process-token")

	s, err := Load(LoadOptions{Dir: dir, EnvFile: envFile})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Token != "process-token" {
		t.Fatalf("token mismatch: got %q", s.Token)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad url":      {EnvBaseURL: "ftp://example.com"},
		"bad duration": {EnvDebounce: "soon"},
		"bad size":     {EnvPageSize: "ten"},
		"bad level":    {EnvLogLevel: "loud"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := Load(LoadOptions{Dir: dir, EnvFile: filepath.Join(dir, ".env"), LookupEnv: mapEnv(env)})
			if err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	dir := t.TempDir()
	token := "secret"
	size := 30
	if _, err := Update(UpdateOptions{Dir: dir, Token: &token, PageSize: &size}); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	url := "https://portal.example.com/api"
	res, err := Update(UpdateOptions{Dir: dir, BaseURL: &url})
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if res.Settings.Token != "secret" || res.Settings.PageSize != 30 {
		t.Fatalf("unset fields changed: %+v", res.Settings)
	}
	if res.Settings.BaseURL != url {
		t.Fatalf("base url mismatch: got %q", res.Settings.BaseURL)
	}

	info, err := os.Stat(res.ConfigPath)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("config file should be private: got %v", info.Mode().Perm())
	}

	stored, err := Read(res.ConfigPath)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if stored.BaseURL != url || stored.Token != "secret" || stored.Debounce != DefaultDebounce {
		t.Fatalf("stored settings mismatch: %+v", stored)
	}

	zero := 0
	if _, err := Update(UpdateOptions{Dir: dir, PageSize: &zero}); err == nil {
		t.Fatal("expected error for page size 0")
	}
}

func TestInitAndDoctor(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".jobportal")

	res, err := Init(InitOptions{Dir: dir})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !res.CreatedDir || !res.CreatedConfig {
		t.Fatalf("init should create dir and config: %+v", res)
	}
	again, err := Init(InitOptions{Dir: dir})
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if again.CreatedConfig {
		t.Fatal("second init must keep the existing config")
	}

	load := LoadOptions{EnvFile: filepath.Join(dir, ".env"), LookupEnv: noEnv}
	doc := Doctor(context.Background(), DoctorOptions{Dir: dir, Load: load})
	if doc.OK {
		t.Fatalf("doctor should fail without a token: %+v", doc)
	}
	if !hasCheck(doc, "token", false) {
		t.Fatalf("token check missing: %+v", doc.Checks)
	}

	pinged := false
	load.LookupEnv = mapEnv(map[string]string{EnvToken: "t"})
	doc = Doctor(context.Background(), DoctorOptions{Dir: dir, Load: load, Ping: func(context.Context, Settings) error {
		pinged = true
		return errors.New("connection refused")
	}})
	if !pinged || doc.OK || !hasCheck(doc, "backend", false) {
		t.Fatalf("backend check mismatch: pinged=%v %+v", pinged, doc.Checks)
	}

	doc = Doctor(context.Background(), DoctorOptions{Dir: dir, Load: load, Ping: func(context.Context, Settings) error { return nil }})
	if !doc.OK {
		t.Fatalf("doctor should pass: %+v", doc.Checks)
	}
}

func hasCheck(doc DoctorResult, name string, ok bool) bool {
	for _, c := range doc.Checks {
		if c.Name == name && c.OK == ok {
			return true
		}
	}
	return false
}
