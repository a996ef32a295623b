package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"easel/internal/config"
	"easel/internal/history"
	"easel/internal/imageapi"
	"easel/internal/logging"
	"easel/internal/quota"
	"easel/internal/result"
	"easel/internal/session"
	"easel/internal/signalbus"
	"easel/internal/tracker"
	"easel/internal/transport"
)

type commandContext struct {
	configFlag *string
	serverFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	appOnce sync.Once
	app     *application
	appErr  error
}

// application is the wired client: one transport chokepoint, one session,
// and the engines layered on top.
type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	bus      *signalbus.Bus
	store    *session.Store
	session  *session.Service
	api      *imageapi.Client
	gate     *quota.Gate
	tracker  *tracker.Tracker
	resolver *result.Resolver
	// history is nil when the local ledger is disabled or unavailable.
	history *history.Store
}

func newCommandContext(configFlag, serverFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
			cfg.Server.BaseURL = strings.TrimSpace(*c.serverFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureApp wires the full client stack once per invocation.
func (c *commandContext) ensureApp() (*application, error) {
	c.appOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.appErr = err
			return
		}

		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.appErr = fmt.Errorf("configure logging: %w", err)
			return
		}

		bus := signalbus.New()
		installAdvisorySubscribers(bus)

		store, err := session.Open(cfg.SessionFile(), logger)
		if err != nil {
			c.appErr = fmt.Errorf("open session: %w", err)
			return
		}

		httpClient, err := transport.New(cfg.Server.BaseURL, store, bus, logger,
			transport.WithTimeout(cfg.RequestTimeout()))
		if err != nil {
			c.appErr = fmt.Errorf("configure transport: %w", err)
			return
		}

		api := imageapi.NewClient(httpClient, logger)

		app := &application{
			cfg:      cfg,
			logger:   logger,
			bus:      bus,
			store:    store,
			session:  session.NewService(store, api, logger),
			api:      api,
			gate:     quota.NewGate(api, cfg.QuotaRefreshInterval(), logger),
			tracker:  tracker.New(api, cfg.PollInterval(), logger),
			resolver: result.NewResolver(api, cfg.Paths.OutputDir, logger),
		}

		if cfg.History.Enabled {
			ledger, err := history.Open(cfg)
			if err != nil {
				// The ledger is advisory; a broken database should not
				// block the command.
				logger.Warn("open history ledger", logging.Args(logging.Error(err))...)
			} else {
				app.history = ledger
			}
		}

		c.app = app
	})
	return c.app, c.appErr
}

func (c *commandContext) shutdown() {
	if c.app == nil {
		return
	}
	c.app.tracker.Close()
	if c.app.history != nil {
		_ = c.app.history.Close()
	}
}

// installAdvisorySubscribers prints classified API failures and session
// expiry hints to stderr, mirroring what the transport publishes.
func installAdvisorySubscribers(bus *signalbus.Bus) {
	bus.Subscribe(signalbus.ChannelAPIError, func(payload any) {
		apiErr, ok := payload.(*signalbus.APIError)
		if !ok {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %s\n", apiErr.Title, apiErr.Message)
	})
	bus.Subscribe(signalbus.ChannelUnauthorized, func(any) {
		fmt.Fprintln(os.Stderr, "Session expired. Run `easel login` to sign in again.")
	})
}

// requireAuth resolves the app and refuses early when no session exists, so
// commands fail with a hint instead of a server 401.
func (c *commandContext) requireAuth() (*application, error) {
	app, err := c.ensureApp()
	if err != nil {
		return nil, err
	}
	if !app.store.IsAuthenticated() {
		return nil, fmt.Errorf("not logged in; run `easel login` first")
	}
	return app, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
