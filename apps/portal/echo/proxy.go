package echoportal

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

type (
	// apiProxy forwards /api/* calls to the backend with the browser's
	// cookies, recovering from an expired access credential on the way: a 401
	// triggers one refresh (single-flight per refresh credential, so parallel
	// tabs and requests collapse into one renewal) and exactly one retry.
	apiProxy struct {
		opts  *Options
		group singleflight.Group
	}

	refreshOutcome struct {
		ok      bool
		cookies []*http.Cookie // renewed credential cookies
	}
)

func registerAPIProxy(g *echo.Group, opts *Options) {
	proxy := &apiProxy{opts: opts}
	g.Any("/*", proxy.handle)
}

func (p *apiProxy) handle(ctx echo.Context) error {
	req := ctx.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return errors.Wrap(err, "reading request body")
	}

	resp, err := p.forward(ctx, body, nil)
	if err != nil {
		return errBackendUnavailable
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()

		refreshCookie, cErr := ctx.Cookie(p.opts.Conf.Portal.RefreshCookie)
		if cErr != nil {
			return errUnauthorized
		}
		outcome := p.refresh(ctx, refreshCookie.Value)
		if !outcome.ok {
			// terminal: the user must re-authenticate
			expireCookie(ctx, p.opts.Conf.Portal.AccessCookie)
			expireCookie(ctx, p.opts.Conf.Portal.RefreshCookie)
			expireCookie(ctx, selectedRoleCookie)
			return errAuthenticationFailed
		}

		// hand the renewed credentials to the browser and retry once with them
		for _, cookie := range outcome.cookies {
			ctx.SetCookie(cookie)
		}
		if resp, err = p.forward(ctx, body, outcome.cookies); err != nil {
			return errBackendUnavailable
		}
	}
	defer func() { _ = resp.Body.Close() }()

	return ctx.Stream(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
}

// forward replays the incoming request against the backend, mapping
// /api/<rest> to /v1/<rest>. Renewed cookies, when given, supersede the
// browser's stale ones.
func (p *apiProxy) forward(ctx echo.Context, body []byte, renewed []*http.Cookie) (*http.Response, error) {
	in := ctx.Request()

	target := p.opts.Conf.Backend.BaseURL + "/v1/" + ctx.Param("*")
	if in.URL.RawQuery != "" {
		target += "?" + in.URL.RawQuery
	}

	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(in.Context(), in.Method, target, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "creating backend request")
	}
	if ct := in.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if accept := in.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	fresh := make(map[string]string, len(renewed))
	for _, cookie := range renewed {
		fresh[cookie.Name] = cookie.Value
	}
	for _, cookie := range in.Cookies() {
		if v, ok := fresh[cookie.Name]; ok {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: v})
			delete(fresh, cookie.Name)
			continue
		}
		req.AddCookie(cookie)
	}
	for name, v := range fresh {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}

	return p.opts.HTTPClient.Do(req)
}

// refresh renews the credentials with the browser's refresh cookie.
// Single-flight: concurrent 401s sharing the same refresh credential observe
// one renewal call and its outcome. Failure is terminal: no retry, no backoff;
// transport errors and non-2xx responses count the same.
func (p *apiProxy) refresh(ctx echo.Context, key string) refreshOutcome {
	v, _, _ := p.group.Do(key, func() (interface{}, error) {
		resp, err := p.refreshCall(ctx)
		success := err == nil && resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
		if p.opts.Metrics != nil {
			p.opts.Metrics.ObserveRefresh("request", success)
		}
		if err != nil {
			p.opts.Logger.Debug("token refresh failed", err)
			return refreshOutcome{}, nil
		}
		defer func() { _ = resp.Body.Close() }()
		if !success {
			p.opts.Logger.Debug("token refresh rejected", resp.StatusCode)
			return refreshOutcome{}, nil
		}
		return refreshOutcome{ok: true, cookies: resp.Cookies()}, nil
	})
	return v.(refreshOutcome)
}

func (p *apiProxy) refreshCall(ctx echo.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(
		ctx.Request().Context(), http.MethodPost, p.opts.Conf.Backend.BaseURL+"/v1/auth/refresh", nil,
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating refresh request")
	}
	for _, cookie := range ctx.Request().Cookies() {
		req.AddCookie(cookie)
	}
	return p.opts.HTTPClient.Do(req)
}
