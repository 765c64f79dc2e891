// Package echoportal is the edge layer fronting the Shule backend for
// browsers: it gates navigations to the role dashboards, proxies API calls
// with transparent token refresh, and relays the auth flow.
package echoportal

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	metricsvc "github.com/trezcool/shule/services/metrics"
)

type (
	Options struct {
		Addr           string
		DisableReqLogs bool
		Conf           *core.Config
		Logger         core.Logger
		Metrics        *metricsvc.Metrics
		Registry       *prometheus.Registry
		Validate       *validator.Validate
		Translator     ut.Translator

		// Shutdown receives a signal when the app requests a graceful stop.
		Shutdown chan os.Signal

		// Backend transport; overridable in tests.
		HTTPClient *http.Client
	}

	Server interface {
		http.Handler
		Start() error
		Stop(ctx context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.HTTPClient == nil {
		// the proxy forwards the browser's cookies explicitly; no jar
		opts.HTTPClient = &http.Client{Timeout: opts.Conf.Backend.Timeout}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.Use(routeGuardMiddleware(conf, s.opts.Metrics))

	s.app.GET("/", home)
	s.app.GET("/healthz", healthz)
	if s.opts.Registry != nil {
		s.app.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}),
		))
	}

	registerAuthAPI(s.app.Group("/auth"), s.opts)
	registerAPIProxy(s.app.Group("/api"), s.opts)
	registerDashboards(s.app)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Addr)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// signalShutdown requests a graceful shutdown of the app.
func (s *server) signalShutdown() {
	if s.opts.Shutdown != nil {
		select {
		case s.opts.Shutdown <- syscall.SIGTERM:
		default:
		}
	}
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Shule portal!")
}

func healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// registerDashboards mounts the role areas. Content is out of scope here; each
// area sits behind the route guard and loads its data through the /api proxy,
// which enforces the actual authorization.
func registerDashboards(app *echo.Echo) {
	for _, role := range session.AllRoles {
		area := session.RoleHome(role)
		app.GET(area, dashboard(role))
		app.GET(area+"/*", dashboard(role))
	}
}

func dashboard(role string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{"area": role})
	}
}
