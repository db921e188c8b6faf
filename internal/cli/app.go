package cli

import (
	"flag"
	"log/slog"
	"strings"

	"jobportal/internal/config"
	"jobportal/internal/logging"
	"jobportal/internal/portal"
)

// app is what a portal command needs: resolved settings, a logger and a
// gateway client sharing one session.
type app struct {
	dir      string
	settings config.Settings
	logger   *slog.Logger
	client   *portal.Client
}

func dirFlag(fs *flag.FlagSet) *string {
	return fs.String("dir", config.DefaultDir, "state directory (settings, profile draft)")
}

func loadApp(dir string) (*app, error) {
	dir = strings.TrimSpace(dir)
	settings, err := config.Load(config.LoadOptions{Dir: dir})
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(stderr, level)

	client, err := newClient(settings, logger)
	if err != nil {
		return nil, err
	}
	return &app{dir: dir, settings: settings, logger: logger, client: client}, nil
}

func newClient(s config.Settings, logger *slog.Logger) (*portal.Client, error) {
	session := portal.NewSession(s.Token)
	session.OnClear(func() {
		logger.Warn("session cleared after an auth failure; set a new token with settings set --token")
	})
	return portal.New(portal.Options{
		BaseURL: s.BaseURL,
		Session: session,
		Timeout: s.RequestTimeout,
		Logger:  logger,
	})
}
