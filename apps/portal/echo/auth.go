package echoportal

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

const selectedRoleCookie = "selected_role"

type (
	authAPI struct {
		opts *Options
	}

	SessionResponse struct {
		User               *session.User `json:"user"`
		SelectedRole       string        `json:"selected_role,omitempty"`
		NeedsRoleSelection bool          `json:"needs_role_selection"`
		Redirect           string        `json:"redirect"`
	}
)

func registerAuthAPI(g *echo.Group, opts *Options) {
	api := authAPI{opts: opts}

	g.POST("/login", api.login)
	g.POST("/logout", api.logout)
	g.POST("/logout-all", api.logoutAll)
	g.POST("/select-role", api.selectRole)
	g.GET("/session", api.session)
}

// forward performs a backend call carrying the browser's cookies.
func (api *authAPI) forward(ctx echo.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(
		ctx.Request().Context(), method, api.opts.Conf.Backend.BaseURL+path, rdr,
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating backend request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range ctx.Request().Cookies() {
		req.AddCookie(cookie)
	}
	return api.opts.HTTPClient.Do(req)
}

// relayCookies copies the backend's Set-Cookie headers to the browser.
func relayCookies(ctx echo.Context, resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		ctx.SetCookie(cookie)
	}
}

func expireCookie(ctx echo.Context, name string) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (api *authAPI) login(ctx echo.Context) error {
	var data session.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encoding credentials")
	}
	resp, err := api.forward(ctx, http.MethodPost, "/v1/auth/login", payload)
	if err != nil {
		return errBackendUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		return core.NewValidationError(errors.New("invalid credentials"))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errBackendError
	}

	var env struct {
		User *session.User `json:"user"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "decoding login response")
	}
	if env.User == nil {
		return errors.New("login response missing user")
	}

	// hand the credential cookies to the browser; a fresh login starts with no
	// role context
	relayCookies(ctx, resp)
	expireCookie(ctx, selectedRoleCookie)

	sess := session.Session{User: env.User, IsAuthenticated: true}
	return ctx.JSON(http.StatusOK, SessionResponse{
		User:               env.User,
		NeedsRoleSelection: sess.NeedsRoleSelection(),
		Redirect:           sess.RedirectTarget(),
	})
}

// logout notifies the backend best-effort; the browser's cookies are cleared
// regardless of the outcome.
func (api *authAPI) logout(ctx echo.Context) error {
	return api.doLogout(ctx, "/v1/auth/logout")
}

func (api *authAPI) logoutAll(ctx echo.Context) error {
	return api.doLogout(ctx, "/v1/auth/logout-all")
}

func (api *authAPI) doLogout(ctx echo.Context, path string) error {
	if resp, err := api.forward(ctx, http.MethodPost, path, nil); err != nil {
		api.opts.Logger.Debug("backend logout failed", err)
	} else {
		_ = resp.Body.Close()
	}

	expireCookie(ctx, api.opts.Conf.Portal.AccessCookie)
	expireCookie(ctx, api.opts.Conf.Portal.RefreshCookie)
	expireCookie(ctx, selectedRoleCookie)
	return ctx.NoContent(http.StatusNoContent)
}

// selectRole sets the active role context after checking it against the
// backend-reported roles. Pure edge mutation: no backend state changes.
func (api *authAPI) selectRole(ctx echo.Context) error {
	var data session.RoleSelection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleSelection")
	}
	if err := data.Validate(api.opts.Validate); err != nil {
		return err
	}

	usr, err := api.currentUser(ctx)
	if err != nil {
		return errUnauthorized
	}
	if !usr.HasRole(data.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "role not assigned to user"})
	}

	ctx.SetCookie(&http.Cookie{
		Name:     selectedRoleCookie,
		Value:    data.Role,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	return ctx.JSON(http.StatusOK, echo.Map{"redirect": session.RoleHome(data.Role)})
}

func (api *authAPI) session(ctx echo.Context) error {
	usr, err := api.currentUser(ctx)
	if err != nil {
		return errUnauthorized
	}

	sess := session.Session{User: usr, IsAuthenticated: true}
	if cookie, cErr := ctx.Cookie(selectedRoleCookie); cErr == nil && usr.HasRole(cookie.Value) {
		sess.SelectedRole = cookie.Value
	}
	return ctx.JSON(http.StatusOK, SessionResponse{
		User:               usr,
		SelectedRole:       sess.SelectedRole,
		NeedsRoleSelection: sess.NeedsRoleSelection(),
		Redirect:           sess.RedirectTarget(),
	})
}

func (api *authAPI) currentUser(ctx echo.Context) (*session.User, error) {
	resp, err := api.forward(ctx, http.MethodGet, "/v1/auth/me", nil)
	if err != nil {
		return nil, errors.Wrap(err, "checking session")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("session check returned %d", resp.StatusCode)
	}

	var env struct {
		User *session.User `json:"user"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decoding session response")
	}
	if env.User == nil {
		return nil, errors.New("session response missing user")
	}
	return env.User, nil
}
