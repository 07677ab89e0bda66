package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aification/sessionkit"
	"github.com/aification/sessionkit/api"
	"github.com/aification/sessionkit/signin"
	"github.com/aification/sessionkit/storage"
)

// app carries the global flags and the objects built from them for one command run.
type app struct {
	configPath string
	apiBase    string
	backend    string
	verbose    bool

	cfg     sessionkit.Config
	logger  *zap.Logger
	client  *api.Client
	storage storage.Storage
	store   *sessionkit.SessionStore
	flows   *signin.Flows

	closers []func() error
}

// printNavigator reports navigations instead of performing them.
type printNavigator struct {
	out io.Writer
}

func (n printNavigator) Replace(url string) {
	fmt.Fprintf(n.out, "navigate: %s\n", url)
}

type openOptions struct {
	metrics    bool
	visibility sessionkit.VisibilitySource
	events     sessionkit.EventSink
}

// open loads configuration and builds the store. The returned func releases everything
// open created.
func (a *app) open(out io.Writer, opts openOptions) (func(), error) {
	cfg, err := sessionkit.LoadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.apiBase != "" {
		cfg.API.BaseURL = a.apiBase
	}
	if a.backend != "" {
		cfg.Storage.Backend = a.backend
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.cfg = cfg

	logger, err := newLogger(a.verbose)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	st, err := a.openStorage()
	if err != nil {
		a.close()
		return nil, err
	}
	a.storage = st

	client, err := api.NewClient(cfg.API.BaseURL, api.NewHTTPClient(cfg.API.Timeout))
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client

	b := sessionkit.New().
		WithConfig(cfg).
		WithStorage(st).
		WithProfileFetcher(client).
		WithNavigator(printNavigator{out: out}).
		WithLogger(logger)
	if opts.visibility != nil {
		b.WithVisibility(opts.visibility)
	}
	if opts.events != nil {
		b.WithEventSink(opts.events)
	}
	store, err := b.Build()
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.flows = signin.New(client, store)
	a.flows.Logger = logger

	return a.close, nil
}

func (a *app) openStorage() (storage.Storage, error) {
	switch a.cfg.Storage.Backend {
	case sessionkit.StorageMemory:
		return storage.NewMemoryBackend().Open(), nil
	case sessionkit.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr: a.cfg.Storage.RedisAddr,
			DB:   a.cfg.Storage.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %v", storage.ErrBackendUnavailable, err)
		}
		a.closers = append(a.closers, client.Close)
		return storage.NewRedis(client, a.cfg.Storage.RedisPrefix), nil
	default:
		path := a.cfg.Storage.FilePath
		if path == "" {
			var err error
			if path, err = defaultTokenPath(); err != nil {
				return nil, err
			}
		}
		return storage.NewFile(path), nil
	}
}

// close runs closers in reverse order. Errors are logged, not returned.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func defaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "aification", "session.json"), nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// describeError renders backend errors the way the login page shows them.
func describeError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Detail)
	}
	return err
}

func readSecret(in io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(in, 4096))
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
