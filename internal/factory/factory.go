// Package factory wires configuration into a ready-to-use engine.
package factory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"timevault/internal/config"
	"timevault/internal/seal"
	"timevault/internal/store/redis"
	"timevault/internal/store/sqlite"
	"timevault/internal/timeauth"
)

// Engine bundles the long-lived components built from a Config.
type Engine struct {
	Availability *timeauth.Availability
	Lifecycle    *seal.Lifecycle
	Store        seal.Store
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// NewSource returns the drand HTTP source with pacing and, when more than one
// attempt is configured, retries for transport failures.
func NewSource(cfg *config.Config, httpClient timeauth.HTTPDoer) timeauth.Source {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	src := timeauth.NewDrandSourceWithDeps(httpClient, cfg.BeaconURL, cfg.ChainHash)
	src.Timeout = cfg.RequestTimeout
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		src.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.RetryAttempts > 1 {
		return timeauth.NewRetrying(src, cfg.RetryAttempts, cfg.RetryBaseBackoff)
	}
	return src
}

// NewStore opens the store selected by cfg.StoreDriver.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (seal.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return seal.NewMemoryStore(), nil

	case config.DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("TIMEVAULT_SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("driver", cfg.StoreDriver).Str("path", cfg.SQLitePath).Msg("store opened")
		return st, nil

	case config.DriverRedis:
		st := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := st.HealthCheck(pingCtx); err != nil {
			_ = st.Close()
			return nil, err
		}
		log.Debug().Str("driver", cfg.StoreDriver).Str("addr", cfg.RedisAddr).Msg("store opened")
		return st, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
	}
}

// NewCodec returns the payload codec used for sealing.
func NewCodec(cfg *config.Config) seal.PayloadCodec {
	if cfg.Scheme == config.SchemeTlock {
		return tlockCodec(cfg)
	}
	return seal.PlainCodec{}
}

func tlockCodec(cfg *config.Config) seal.TlockCodec {
	return seal.TlockCodec{Box: &timeauth.RealTimelockBox{BaseURL: cfg.BeaconURL, ChainHash: cfg.ChainHash}}
}

// NewEngine builds every component from cfg. httpClient may be nil.
func NewEngine(ctx context.Context, cfg *config.Config, httpClient timeauth.HTTPDoer, log zerolog.Logger) (*Engine, error) {
	store, err := NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	avail := timeauth.NewAvailability(NewSource(cfg, httpClient),
		timeauth.WithParamsTTL(cfg.ParamsTTL),
		timeauth.WithLogger(log),
	)

	// Both schemes can always be opened; cfg.Scheme only picks how new messages are sealed.
	sealer := seal.NewSealer(avail, NewCodec(cfg))
	evaluator := seal.NewEvaluator(avail, tlockCodec(cfg))

	return &Engine{
		Availability: avail,
		Lifecycle:    seal.NewLifecycle(store, sealer, evaluator, log),
		Store:        store,
	}, nil
}
