package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"physics-tutor/api/internal/config"
	"physics-tutor/api/internal/diagram"
	diagramopenai "physics-tutor/api/internal/diagram/openai"
	"physics-tutor/api/internal/llm"
	"physics-tutor/api/internal/llm/gemini"
	"physics-tutor/api/internal/llm/openai"
	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/store"
	"physics-tutor/api/internal/tutor"
)

// Deps is everything the surfaces share: engines, the diagram service and the optional
// cache backends behind it.
type Deps struct {
	Cfg      *config.Config
	Log      *logger.Logger
	Engines  *llm.Engines
	Default  llm.Engine
	Diagrams tutor.DiagramGenerator // nil when diagrams are disabled

	checks  []func(ctx context.Context) error // health probes of the active cache backend
	closers []func() error
}

// Build wires the dependencies described by cfg. cfg must already be validated.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Deps, error) {
	log = logger.OrNop(log)
	d := &Deps{Cfg: cfg, Log: log}

	d.Engines = BuildEngines(cfg)
	def, err := d.Engines.GetEngine(cfg.TextEngine)
	if err != nil {
		return nil, fmt.Errorf("text engine %q: %w", cfg.TextEngine, err)
	}
	d.Default = def
	log.Info("text engines ready", "default", def.Name(), "model", def.GetModel(), "available", d.Engines.Names())

	if !cfg.Diagrams {
		log.Info("diagrams disabled")
		return d, nil
	}
	cache, err := d.buildCache(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Diagrams = diagram.NewService(diagramopenai.New(cfg.OpenAIAPIKey, cfg.OpenAIImageModel), diagram.Options{
		Size:    cfg.ImageSize,
		Quality: cfg.ImageQuality,
		Model:   cfg.OpenAIImageModel,
		MaxAge:  cfg.DiagramMaxAge,
		Cache:   cache,
		Log:     log.With("service", "diagram"),
	})
	return d, nil
}

// BuildEngines registers every text engine that has an API key.
func BuildEngines(cfg *config.Config) *llm.Engines {
	var engs []llm.Engine
	if cfg.GroqAPIKey != "" {
		engs = append(engs, openai.NewGroq(cfg.GroqAPIKey, cfg.GroqModel))
	}
	if cfg.GeminiAPIKey != "" {
		engs = append(engs, gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel))
	}
	if cfg.OpenAIAPIKey != "" {
		engs = append(engs, openai.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	}
	if cfg.DeepseekAPIKey != "" {
		engs = append(engs, openai.NewDeepseek(cfg.DeepseekAPIKey, cfg.DeepseekModel))
	}
	return llm.NewEngines(engs...)
}

func (d *Deps) buildCache(ctx context.Context) (diagram.Cache, error) {
	switch d.Cfg.DiagramCache {
	case "none":
		return nil, nil
	case "postgres":
		dsn := d.Cfg.DSN()
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("sql.Open: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)

		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db.Ping: %w", err)
		}
		repo := store.NewDiagramRepo(db)
		if err := repo.EnsureSchema(pctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("diagram_cache schema: %w", err)
		}
		d.checks = append(d.checks, db.PingContext)
		d.closers = append(d.closers, db.Close)
		d.Log.Info("db connected", "dsn", SafeDSNSummary(dsn))

		maxAge := d.maxAge()
		d.closers = append(d.closers, d.every(maxAge, "diagram cache purge", func(ctx context.Context) error {
			n, err := repo.PurgeOlderThan(ctx, maxAge)
			if n > 0 {
				d.Log.Info("diagram cache purged", "rows", n)
			}
			return err
		}))
		return repo, nil
	case "redis":
		ttl := d.maxAge()
		rc, err := store.NewRedisDiagramCache(ctx, d.Cfg.RedisURL, ttl)
		if err != nil {
			return nil, err
		}
		d.checks = append(d.checks, rc.Ping)
		d.closers = append(d.closers, rc.Close)
		d.Log.Info("redis diagram cache ready", "ttl", ttl)
		return rc, nil
	default:
		return diagram.NewMemoryCache(), nil
	}
}

func (d *Deps) maxAge() time.Duration {
	if d.Cfg.DiagramMaxAge > 0 {
		return d.Cfg.DiagramMaxAge
	}
	return diagram.DefaultMaxAge
}

// every runs fn each interval until the returned stop func is called.
func (d *Deps) every(interval time.Duration, name string, fn func(ctx context.Context) error) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					d.Log.Warn(name+" failed", "error", err)
				}
			}
		}
	}()
	return func() error {
		cancel()
		<-done
		return nil
	}
}

// NewTutor builds a tutor over eng (the default engine when nil).
func (d *Deps) NewTutor(eng llm.Engine) *tutor.Tutor {
	if eng == nil {
		eng = d.Default
	}
	return tutor.New(eng, d.Diagrams, tutor.WithLogger(d.Log))
}

// Health pings the Postgres or Redis diagram cache when one is in use.
func (d *Deps) Health(ctx context.Context) error {
	for _, check := range d.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Log.Warn("close failed", "error", err)
		}
	}
	d.closers = nil
}

// SafeDSNSummary describes a DSN without its password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
