// Package schoolapi is the REST client for the remote Shule backend.
// It attaches the ambient credential cookies to every call and transparently
// recovers from an expired access credential: on a 401 it delegates to the
// token coordinator for a refresh and retries the original call exactly once.
package schoolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

// Refresher renews the access credential; it reports success or failure and
// serializes concurrent attempts internally.
type Refresher interface {
	RefreshTokens(ctx context.Context) bool
}

// Observer is notified of every settled request.
type Observer interface {
	ObserveRequest(method string, status int, retried bool)
}

type (
	// Request describes one backend call.
	Request struct {
		Method string
		Path   string
		Body   interface{} // JSON-encoded when non-nil
		Header http.Header

		// SkipAuth performs the call without the ambient credential cookies.
		SkipAuth bool
		// SkipRefresh disables the 401 refresh-and-retry handling.
		SkipRefresh bool
	}

	Client struct {
		baseURL   string
		http      *http.Client // cookie jar holds the ambient credentials
		bare      *http.Client // no jar, for SkipAuth calls
		log       core.Logger
		refresher Refresher
		observer  Observer
		clientID  string
	}
)

func NewClient(conf *core.Config, log core.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating cookie jar")
	}
	return NewClientWithJar(conf, log, jar), nil
}

// NewClientWithJar uses the provided jar as the ambient credential store
// (e.g. a PersistentJar for CLI contexts).
func NewClientWithJar(conf *core.Config, log core.Logger, jar http.CookieJar) *Client {
	return &Client{
		baseURL: conf.Backend.BaseURL,
		http:    &http.Client{Jar: jar, Timeout: conf.Backend.Timeout},
		bare:    &http.Client{Timeout: conf.Backend.Timeout},
		log:     log,
	}
}

// Cookie returns the named ambient credential cookie's value, if held.
func (c *Client) Cookie(name string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil || c.http.Jar == nil {
		return ""
	}
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// SetRefresher attaches the token coordinator. Setter injection: the
// coordinator's own refresh call goes through this client, so it cannot be a
// constructor argument.
func (c *Client) SetRefresher(r Refresher) { c.refresher = r }

// SetObserver attaches a metrics observer.
func (c *Client) SetObserver(obs Observer) { c.observer = obs }

// SetClientID sets the stable installation id sent as X-Client-ID.
func (c *Client) SetClientID(id string) { c.clientID = id }

// Do performs the request and decodes the JSON response body into out (when
// non-nil). A 401 triggers a refresh and a single retry unless SkipRefresh is
// set; refresh failure surfaces as ErrAuthenticationFailed. Retried calls are
// not guaranteed idempotent by this layer.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	status, body, err := c.send(ctx, req, payload)
	if err != nil {
		return err
	}

	var retried bool
	if status == http.StatusUnauthorized && !req.SkipRefresh && c.refresher != nil {
		if !c.refresher.RefreshTokens(ctx) {
			c.observe(req.Method, status, false)
			return errors.WithStack(ErrAuthenticationFailed)
		}
		retried = true
		if status, body, err = c.send(ctx, req, payload); err != nil {
			return err
		}
	}
	c.observe(req.Method, status, retried)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return errors.WithStack(&RequestError{StatusCode: status, Detail: errDetail(status, body)})
	}
	if out != nil && len(body) > 0 {
		if err = json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "decoding response body")
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) (int, []byte, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, rdr)
	if err != nil {
		return 0, nil, errors.Wrap(err, "creating request")
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		httpReq.Header.Set("X-Client-ID", c.clientID)
	}

	client := c.http
	if req.SkipAuth {
		client = c.bare
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, errors.WithStack(&NetworkError{Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.WithStack(&NetworkError{Err: err})
	}
	return resp.StatusCode, body, nil
}

func (c *Client) observe(method string, status int, retried bool) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, status, retried)
	}
}

// errDetail extracts the server-provided detail message when available,
// else falls back to the status text.
func errDetail(status int, body []byte) string {
	var env struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Detail != "" {
			return env.Detail
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return http.StatusText(status)
}

// Auth endpoints

type userEnvelope struct {
	User *session.User `json:"user"`
}

// Login exchanges credentials for an authenticated session; the credential
// cookies land in the jar. 4xx rejections map to ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.User, error) {
	var env userEnvelope
	err := c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/v1/auth/login",
		Body:        creds,
		SkipRefresh: true,
	}, &env)
	if err != nil {
		if reqErr, ok := errors.Cause(err).(*RequestError); ok &&
			reqErr.StatusCode >= http.StatusBadRequest && reqErr.StatusCode < http.StatusInternalServerError {
			return nil, errors.WithStack(ErrInvalidCredentials)
		}
		return nil, errors.Wrap(err, "logging in")
	}
	if env.User == nil {
		return nil, errors.New("login response missing user")
	}
	return env.User, nil
}

// Logout invalidates the current server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: "/v1/auth/logout", SkipRefresh: true}, nil)
}

// LogoutAll invalidates every session for the user (all devices).
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: "/v1/auth/logout-all", SkipRefresh: true}, nil)
}

// Refresh renews the access credential using the ambient refresh cookie.
// The backend may include an updated user in the response.
func (c *Client) Refresh(ctx context.Context) (*session.User, error) {
	var env userEnvelope
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/v1/auth/refresh", SkipRefresh: true}, &env); err != nil {
		return nil, errors.Wrap(err, "refreshing tokens")
	}
	return env.User, nil
}

// Me restores the session from an existing server-side session, if any.
func (c *Client) Me(ctx context.Context) (*session.User, error) {
	var env userEnvelope
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/v1/auth/me"}, &env); err != nil {
		return nil, errors.Wrap(err, "checking session")
	}
	if env.User == nil {
		return nil, errors.New("session response missing user")
	}
	return env.User, nil
}
