package webapp

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"physics-tutor/api/internal/httpserver"
	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/session"
	"physics-tutor/api/internal/tutor"
)

//go:embed template/*.tmpl
var templates embed.FS

const (
	cookieName     = "tutor_session"
	cookieMaxAge   = 7 * 24 * 3600
	requestTimeout = 2 * time.Minute

	defaultIdleTTL     = cookieMaxAge * time.Second
	defaultMaxSessions = 10000
	sweepEvery         = 10 * time.Minute
)

// WebApp wraps a Gin router serving the single-page tutor.
type WebApp struct {
	Router *gin.Engine
	Server *http.Server

	tutor    *tutor.Tutor
	sessions *session.Store[string]
	log      *logger.Logger

	health      func(ctx context.Context) error
	corsOrigins []string

	last  sync.Map // session id -> tutor.Display, shown once after a form redirect
	locks sync.Map // session id -> *sync.Mutex

	idleTTL     time.Duration
	maxSessions int
	stop        chan struct{}
	stopOnce    sync.Once
}

// SetHealthCheck makes /healthz report check failures (e.g. the cache database).
func (app *WebApp) SetHealthCheck(check func(ctx context.Context) error) { app.health = check }

type Option func(*WebApp)

// WithCORS allows the JSON API to be called from the given browser origins.
func WithCORS(origins []string) Option {
	return func(app *WebApp) { app.corsOrigins = origins }
}

// WithSessionLimits bounds the in-memory session store: sessions idle longer than idle
// are dropped, and the least recently used ones go once more than limit are held.
func WithSessionLimits(idle time.Duration, limit int) Option {
	return func(app *WebApp) { app.idleTTL, app.maxSessions = idle, limit }
}

// WithClock replaces the clock used for session idle tracking.
func WithClock(now func() time.Time) Option {
	return func(app *WebApp) { app.sessions = session.NewStoreWithClock[string](now) }
}

// NewWebApp wires routes and the embedded template.
func NewWebApp(t *tutor.Tutor, log *logger.Logger, opts ...Option) *WebApp {
	router := gin.New()
	router.Use(gin.Recovery())

	app := &WebApp{
		Router:   router,
		tutor:    t,
		sessions: session.NewStore[string](),
		log:      logger.OrNop(log).With("service", "webapp"),

		idleTTL:     defaultIdleTTL,
		maxSessions: defaultMaxSessions,
		stop:        make(chan struct{}),
	}
	for _, o := range opts {
		o(app)
	}
	router.Use(app.requestLog)
	router.SetHTMLTemplate(template.Must(template.ParseFS(templates, "template/*.tmpl")))
	app.setupRoutes()
	return app
}

// Run starts the HTTP server (non-blocking). Listen errors are sent on the returned channel.
func (app *WebApp) Run(addr string) <-chan error {
	app.Server = &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		app.log.Info("web UI listening", "addr", addr)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	go app.janitor()
	return errc
}

// Shutdown gracefully stops the HTTP server.
func (app *WebApp) Shutdown(ctx context.Context) error {
	app.stopOnce.Do(func() { close(app.stop) })
	if app.Server != nil {
		return app.Server.Shutdown(ctx)
	}
	return nil
}

func (app *WebApp) setupRoutes() {
	app.Router.GET("/", app.indexPage)
	app.Router.POST("/question", app.postQuestion)
	app.Router.POST("/answer", app.postAnswer)
	app.Router.POST("/reset", app.postReset)
	app.Router.POST("/end", app.postEnd)
	app.Router.GET("/healthz", func(c *gin.Context) {
		httpserver.HealthHandler(app.health)(c.Writer, c.Request)
	})

	api := app.Router.Group("/api")
	if len(app.corsOrigins) > 0 {
		api.Use(cors.New(cors.Config{
			AllowOrigins:     app.corsOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
		}))
		api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
	api.GET("/state", app.apiState)
	api.POST("/question", app.apiQuestion)
	api.POST("/answer", app.apiAnswer)
	api.POST("/reset", app.apiReset)
	api.POST("/end", app.apiEnd)
}

func (app *WebApp) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	app.log.Debug("http request", "method", c.Request.Method, "path", c.FullPath(),
		"status", c.Writer.Status(), "elapsed_ms", time.Since(start).Milliseconds())
}

// sessionID returns the caller's session id, issuing a new cookie when it is missing or
// not a uuid.
func (app *WebApp) sessionID(c *gin.Context) string {
	if v, err := c.Cookie(cookieName); err == nil {
		if id, err := uuid.Parse(v); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, id, cookieMaxAge, "/", "", false, true)
	return id
}

// lock serializes interactions of one session.
func (app *WebApp) lock(id string) func() {
	v, _ := app.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type interaction func(ctx context.Context, s tutor.Session, text string) (tutor.Session, tutor.Display)

func (app *WebApp) run(c *gin.Context, id string, fn interaction, text string) (tutor.Session, tutor.Display) {
	unlock := app.lock(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	before := app.sessions.Get(id)
	next, d := fn(ctx, before, text)
	app.sessions.Put(id, next)
	if app.maxSessions > 0 && app.sessions.Len() > app.maxSessions {
		app.sweep()
	}
	app.log.Info("turn handled", "session", id, "from", before.Turn.String(), "to", next.Turn.String(), "error", d.Err)
	return next, d
}

// reset keeps memory. A caller without a stored session has nothing to reset, so no
// entry is created for it.
func (app *WebApp) reset(id string) tutor.Session {
	if _, ok := app.sessions.Lookup(id); !ok {
		return tutor.NewSession()
	}
	unlock := app.lock(id)
	defer unlock()
	next := app.tutor.Reset(app.sessions.Get(id))
	app.sessions.Put(id, next)
	return next
}

// end discards the session with its memory.
func (app *WebApp) end(id string) {
	if v, ok := app.locks.Load(id); ok {
		mu := v.(*sync.Mutex)
		mu.Lock()
		defer mu.Unlock()
	}
	app.sessions.Delete(id)
	app.last.Delete(id)
	app.locks.Delete(id)
}

// sweep evicts idle sessions and, past the size limit, the least recently used ones.
func (app *WebApp) sweep() int {
	evicted := app.sessions.Sweep(app.idleTTL, app.maxSessions)
	for _, id := range evicted {
		app.last.Delete(id)
		app.locks.Delete(id)
	}
	if len(evicted) > 0 {
		app.log.Info("sessions evicted", "count", len(evicted), "remaining", app.sessions.Len())
	}
	return len(evicted)
}

func (app *WebApp) janitor() {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-app.stop:
			return
		case <-t.C:
			app.sweep()
		}
	}
}
