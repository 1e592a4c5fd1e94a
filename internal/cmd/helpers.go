package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/droverhq/drover/internal/activity"
	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/config"
	"github.com/droverhq/drover/internal/events"
	"github.com/droverhq/drover/internal/logstore"
	"github.com/droverhq/drover/internal/paths"
	"github.com/droverhq/drover/internal/session"
)

// app bundles the wired components every command needs. Commands that
// never touch the network use newLocalApp; the rest use newApp, which
// additionally builds the API client and fails fast without a key.
type app struct {
	root  string
	cfg   config.Config
	store *cachestore.Store
	logs  *logstore.Registry
	feed  *events.Feed

	api        *api.Client
	engine     *session.Engine
	activities *activity.Client
}

func newLocalApp() (*app, error) {
	root := paths.Resolve()
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &app{
		root:  root,
		cfg:   cfg,
		store: cachestore.New(root, nil),
		logs:  logstore.NewRegistry(root, nil),
		feed:  events.NewFeed(root, nil),
	}, nil
}

func newApp() (*app, error) {
	a, err := newLocalApp()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.Config{
		APIKey:         a.cfg.API.Key,
		BaseURL:        a.cfg.API.BaseURL,
		RequestTimeout: a.cfg.API.RequestTimeout.Duration(0),
	})
	if err != nil {
		return nil, err
	}
	a.api = client
	a.engine = session.NewEngine(session.EngineConfig{
		API:          client,
		Store:        a.store,
		Logs:         a.logs,
		Reporter:     a.feed,
		PollInterval: a.cfg.API.PollInterval.Duration(0),
	})
	a.activities = activity.NewClient(activity.ClientConfig{
		API:          client,
		Logs:         a.logs,
		Store:        a.store,
		PollInterval: a.cfg.API.PollInterval.Duration(0),
	})
	return a, nil
}

func (a *app) Close() {
	if a.logs != nil {
		a.logs.CloseAll()
	}
}

// outputJSON pretty-prints v to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stdoutIsTerminal gates styled output: tables and colors for humans,
// plain or JSON for pipes.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// formatAge returns a human-readable age string.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)

	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
