package config

import (
	"context"
	"os"
	"strings"

	"jobportal/internal/runstore"
)

type DoctorOptions struct {
	Dir  string
	Load LoadOptions
	// Ping checks backend reachability; nil skips the check.
	Ping func(ctx context.Context, s Settings) error
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type InitOptions struct {
	Dir string
}

type InitResult struct {
	Dir           string `json:"dir"`
	ConfigPath    string `json:"config_path"`
	CreatedDir    bool   `json:"created_dir"`
	CreatedConfig bool   `json:"created_config"`
}

func Doctor(ctx context.Context, opts DoctorOptions) DoctorResult {
	dir := stateDir(opts.Dir)
	load := opts.Load
	load.Dir = dir

	checks := make([]DoctorCheck, 0, 5)
	s, err := Load(load)
	if err != nil {
		checks = append(checks, DoctorCheck{Name: "config", OK: false, Message: err.Error()})
	} else {
		checks = append(checks,
			DoctorCheck{Name: "config", OK: true, Message: "loaded " + ConfigPath(dir)},
			DoctorCheck{Name: "base_url", OK: true, Message: s.BaseURL},
		)
		if s.HasToken() {
			checks = append(checks, DoctorCheck{Name: "token", OK: true, Message: "set"})
		} else {
			checks = append(checks, DoctorCheck{Name: "token", OK: false, Message: "missing; run settings set --token or export " + EnvToken})
		}
	}

	dirOK, dirMessage := ensureWritableDir(dir)
	checks = append(checks, DoctorCheck{Name: "directory:state", OK: dirOK, Message: dirMessage})

	if opts.Ping != nil && err == nil && s.HasToken() {
		if pingErr := opts.Ping(ctx, s); pingErr != nil {
			checks = append(checks, DoctorCheck{Name: "backend", OK: false, Message: pingErr.Error()})
		} else {
			checks = append(checks, DoctorCheck{Name: "backend", OK: true, Message: "reachable"})
		}
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

// Init creates the state directory and a default settings file. An existing
// settings file is left alone.
func Init(opts InitOptions) (InitResult, error) {
	dir := stateDir(opts.Dir)
	path := ConfigPath(dir)

	createdDir := false
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		createdDir = true
	}
	if err := runstore.Mkdir(dir); err != nil {
		return InitResult{}, err
	}

	exists, err := runstore.Exists(path)
	if err != nil {
		return InitResult{}, err
	}
	if !exists {
		if err := Save(path, Defaults()); err != nil {
			return InitResult{}, err
		}
	}
	return InitResult{Dir: dir, ConfigPath: path, CreatedDir: createdDir, CreatedConfig: !exists}, nil
}

func stateDir(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return DefaultDir
	}
	return dir
}

func ensureWritableDir(path string) (bool, string) {
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "jobportal-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
