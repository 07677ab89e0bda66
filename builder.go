package sessionkit

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aification/sessionkit/api"
	"github.com/aification/sessionkit/storage"
	"github.com/aification/sessionkit/token"
)

// Builder assembles a SessionStore. A Builder is single-use.
type Builder struct {
	config Config

	storage    storage.Storage
	profiles   ProfileFetcher
	httpClient *http.Client
	visibility VisibilitySource
	navigator  Navigator
	logger     *zap.Logger
	eventSink  EventSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStorage sets the token storage context. When st also implements storage.Watcher,
// its change notifications feed SubscribeToExternalChanges.
func (b *Builder) WithStorage(st storage.Storage) *Builder {
	b.storage = st
	return b
}

// WithProfileFetcher overrides the profile source. Without it Build creates an
// *api.Client for Config.API.
func (b *Builder) WithProfileFetcher(pf ProfileFetcher) *Builder {
	b.profiles = pf
	return b
}

// WithHTTPClient sets the http.Client used by the default profile fetcher.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithVisibility sets the source of visibility transitions.
func (b *Builder) WithVisibility(vs VisibilitySource) *Builder {
	b.visibility = vs
	return b
}

// WithNavigator sets where SignOut navigates. The default discards navigations.
func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithLogger sets the logger. The default is zap.NewNop().
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithEventSink sets the receiver of session events and enables event delivery.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the store.
func (b *Builder) Build() (*SessionStore, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if b.eventSink != nil {
		cfg.Events.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.storage == nil {
		return nil, ErrStorageRequired
	}

	// -------- PROFILE FETCHER --------
	profiles := b.profiles
	if profiles == nil {
		hc := b.httpClient
		if hc == nil {
			hc = api.NewHTTPClient(cfg.API.Timeout)
		}
		client, err := api.NewClient(cfg.API.BaseURL, hc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		profiles = client
	}

	// -------- TOKEN INSPECTOR --------
	var inspector *token.Inspector
	if cfg.Session.RejectExpiredTokens {
		ins, err := token.NewInspector(cfg.Session.ExpiryLeeway)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		inspector = ins
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nav := b.navigator
	if nav == nil {
		nav = noopNavigator{}
	}

	store := &SessionStore{
		storage:    b.storage,
		profiles:   profiles,
		visibility: b.visibility,
		navigator:  nav,
		inspector:  inspector,
		metrics:    NewMetrics(cfg.Metrics),
		events:     newEventDispatcher(cfg.Events, b.eventSink),
		logger:     logger,
		rootURL:    cfg.Navigation.RootURL,
		status:     StatusIdle,
		subs:       make(map[uint64]func(Snapshot)),
	}
	if w, ok := b.storage.(storage.Watcher); ok {
		store.watcher = w
	}

	b.built = true

	return store, nil
}
