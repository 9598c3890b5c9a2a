package terminal

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	"github.com/alovak/kioskpay/internal/metrics"
	"github.com/alovak/kioskpay/internal/middleware"
	"github.com/alovak/kioskpay/internal/stamp"
	"github.com/alovak/kioskpay/internal/tl3800"
	"github.com/alovak/kioskpay/internal/transport"
)

// App is the main application, it contains all the components of the payment
// service and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config
	db     *sql.DB
	replay *transport.Replay
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "kioskpay"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	if a.config.Timezone != "" {
		if loc, err := time.LoadLocation(a.config.Timezone); err == nil {
			stamp.SetDefaultLocation(loc)
		} else {
			a.logger.Info("invalid timezone; using default UTC", slog.String("tz", a.config.Timezone), slog.Any("err", err))
		}
	}

	repository, err := a.openRepository()
	if err != nil {
		return err
	}

	link, err := a.openTransport()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.Config{Registry: registry})

	client := tl3800.NewClient(a.config.Terminal.Exchange(), a.logger, m)
	gateway := tl3800.NewGateway(link, client, tl3800.NewRequests(a.config.Terminal.ID), a.logger)
	svc := NewService(gateway, repository, a.logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(m.Middleware)

	api := NewAPI(svc)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler: router,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

// openRepository picks the storage backend: pg by default, mem only when
// explicitly enabled for tests.
func (a *App) openRepository() (*Repository, error) {
	backend := getenv("REPO_BACKEND", "pg")
	allowMem := getenv("ALLOW_MEM_BACKEND_FOR_TESTS", "false") == "true"
	switch backend {
	case "pg":
		dsn := getenv("DB_DSN", "")
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.db = db
		repository := NewPGRepository(db)
		if a.config.MigrateOnStart {
			if err := repository.Migrate(context.Background()); err != nil {
				return nil, fmt.Errorf("migrating schema: %w", err)
			}
		}
		return repository, nil
	case "mem":
		if !allowMem {
			return nil, fmt.Errorf("mem repository is disabled at runtime; set ALLOW_MEM_BACKEND_FOR_TESTS=true only in tests")
		}
		return NewRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported REPO_BACKEND=%s", backend)
	}
}

func (a *App) openTransport() (transport.Transport, error) {
	tc := a.config.Terminal
	switch tc.Transport {
	case "", "tcp":
		a.logger.Info("terminal link", slog.String("addr", tc.Addr), slog.String("terminal_id", tc.ID))
		return transport.NewTCP(tc.Addr, tc.ConnectTimeout, tc.WriteTimeout), nil
	case "replay":
		replay, err := transport.OpenReplayFile(tc.ReplayFixture, tc.ReplayCapture)
		if err != nil {
			return nil, fmt.Errorf("opening replay transport: %w", err)
		}
		a.logger.Info("terminal link is a replay", slog.String("fixture", tc.ReplayFixture))
		a.replay = replay
		return replay, nil
	default:
		return nil, fmt.Errorf("unsupported terminal transport %q", tc.Transport)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	a.srv.Shutdown(context.Background())

	a.wg.Wait()

	if a.replay != nil {
		if err := a.replay.Release(); err != nil {
			a.logger.Error("closing replay capture", "err", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", "err", err)
		}
	}

	a.logger.Info("app stopped")
}
