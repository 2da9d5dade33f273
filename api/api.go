package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/calderw/bastion/pake"
	"github.com/calderw/bastion/store"
)

//go:embed openapi.yaml
var openapiSpec []byte

// defaultTimingFloor pads every login rejection to the same minimum duration
// so the cheap failure paths (no pending handshake, unknown user) cannot be
// told apart from a full verification failure by the clock.
const defaultTimingFloor = 100 * time.Millisecond

// API holds the dependencies needed by the REST handlers.
type API struct {
	store       store.Store
	engine      pake.Engine
	pending     *pendingLogins
	provisional *provisionalKeys
	rateLimiter *routeRateLimiter
	monitor     *threatMonitor
	audit       *auditLogger

	cryptoSlots    *semaphore.Weighted
	trustedProxies []netip.Prefix
	timingFloor    time.Duration
	debugExport    bool

	logger *slog.Logger
	stop   chan struct{}
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithPendingTTL overrides how long an unanswered login-init handshake stays
// redeemable.
func WithPendingTTL(ttl time.Duration) Option {
	return func(a *API) { a.pending = newPendingLogins(ttl) }
}

// WithProvisionalTTL overrides how long a handshake awaiting its second
// factor stays redeemable.
func WithProvisionalTTL(ttl time.Duration) Option {
	return func(a *API) { a.provisional = newProvisionalKeys(ttl) }
}

// WithRateLimit overrides the fixed-window attempt cap per (IP, route).
func WithRateLimit(window time.Duration, max int) Option {
	return func(a *API) { a.rateLimiter = newRouteRateLimiter(window, max) }
}

// WithTrustedProxies sets the CIDR ranges whose proxy headers are honored
// for client IP extraction.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = prefixes }
}

// WithCryptoSlots caps concurrent protocol computations.
func WithCryptoSlots(n int64) Option {
	return func(a *API) { a.cryptoSlots = semaphore.NewWeighted(n) }
}

// WithDebugExport mounts GET /export-records, which dumps every credential
// record and raises a critical threat event. The route exists for breach
// drills and demos; production deployments leave it off.
func WithDebugExport() Option {
	return func(a *API) { a.debugExport = true }
}

// WithTimingFloor overrides the minimum duration of a login rejection.
// A zero floor disables padding; only tests should do that.
func WithTimingFloor(d time.Duration) Option {
	return func(a *API) { a.timingFloor = d }
}

// New creates a new API instance and starts its background sweepers. Call
// Close to stop them.
func New(st store.Store, engine pake.Engine, opts ...Option) *API {
	a := &API{
		store:       st,
		engine:      engine,
		monitor:     newThreatMonitor(),
		timingFloor: defaultTimingFloor,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.pending == nil {
		a.pending = newPendingLogins(defaultPendingTTL)
	}
	if a.provisional == nil {
		a.provisional = newProvisionalKeys(defaultProvisionalTTL)
	}
	if a.rateLimiter == nil {
		a.rateLimiter = newRouteRateLimiter(defaultRateWindow, defaultRateMax)
	}
	if a.cryptoSlots == nil {
		a.cryptoSlots = semaphore.NewWeighted(int64(2 * runtime.GOMAXPROCS(0)))
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger, a.monitor)

	go a.pending.sweepLoop(a.stop)
	go a.sweepLoop()
	return a
}

// Close stops the background sweepers. The API must not be used afterwards.
func (a *API) Close() {
	close(a.stop)
}

func (a *API) sweepLoop() {
	ticker := time.NewTicker(rateSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.rateLimiter.sweep()
			a.provisional.sweep()
		case <-a.stop:
			return
		}
	}
}

// withCryptoSlot runs fn inside a bounded-concurrency slot so protocol
// computations cannot starve the status endpoints.
func (a *API) withCryptoSlot(ctx context.Context, fn func() error) error {
	if err := a.cryptoSlots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer a.cryptoSlots.Release(1)
	return fn()
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Post("/register-init", a.limit("register-init", a.RegisterInit))
	r.Post("/register-finish", a.limit("register-finish", a.RegisterFinish))
	r.Post("/login-init", a.limit("login-init", a.LoginInit))
	r.Post("/login-finish", a.limit("login-finish", a.LoginFinish))
	r.Post("/verify-2fa", a.limit("verify-2fa", a.VerifyTwoFactor))

	r.Get("/system-status", a.SystemStatus)
	r.Get("/health", a.Health)

	if a.debugExport {
		r.Get("/export-records", a.ExportRecords)
	}

	return r
}
