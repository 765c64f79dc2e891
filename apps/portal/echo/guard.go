package echoportal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
	metricsvc "github.com/trezcool/shule/services/metrics"
)

// routeGuardMiddleware gates every navigation to a protected path before page
// code runs. It is a presence check only: the access cookie's signature and
// expiry are NOT validated here, so a page can pass the guard and still be
// forced to re-authenticate on its first API call. Actual validation and
// refresh happen in the request path.
func routeGuardMiddleware(conf *core.Config, metrics *metricsvc.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			path := ctx.Request().URL.Path
			if isPublicPath(path, conf.Portal.PublicPrefixes) {
				return next(ctx)
			}

			if _, err := ctx.Cookie(conf.Portal.AccessCookie); err != nil {
				if metrics != nil {
					metrics.ObserveGuardRedirect()
				}
				// attach the requested path so the user lands back here after
				// authenticating
				loginURL := conf.Portal.LoginPath + "?next=" + url.QueryEscape(path)
				return ctx.Redirect(http.StatusSeeOther, loginURL)
			}
			return next(ctx)
		}
	}
}

// isPublicPath reports whether path bypasses the guard entirely: public
// marketing pages, the auth flow, static assets and the API routes themselves
// (those perform their own authorization).
func isPublicPath(path string, prefixes []string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
