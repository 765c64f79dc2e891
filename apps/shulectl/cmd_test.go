package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/token"
	"github.com/trezcool/shule/services/schoolapi"
	filestate "github.com/trezcool/shule/storage/state/file"
)

type testLogger struct{}

func (testLogger) Debug(msg string, args ...interface{}) {}
func (testLogger) Info(msg string, args ...interface{})  {}
func (testLogger) Warn(msg string, args ...interface{})  {}
func (testLogger) Error(msg string, args ...interface{}) {}
func (testLogger) Fatal(msg string, args ...interface{}) {}

func fakeBackend(t *testing.T) *httptest.Server {
	usr := session.User{
		ID:       "usr1",
		Name:     "Amina Juma",
		Email:    "amina@shule.test",
		IsActive: true,
		Roles:    []string{session.RoleTeacher, session.RoleParent},
	}
	writeUser := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"user": usr})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds session.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Password != "pwd" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "at1", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt1", Path: "/"})
		writeUser(w)
	})
	mux.HandleFunc("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("access_token"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeUser(w)
	})
	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/auth/logout-all", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	backend := fakeBackend(t)
	dir := t.TempDir()

	conf := &core.Config{}
	conf.Backend.BaseURL = backend.URL
	conf.Token.Lifetime = 15 * time.Minute
	conf.Token.RefreshThreshold = 0.75
	conf.Portal.AccessCookie = "access_token"
	conf.Portal.RefreshCookie = "refresh_token"

	log := testLogger{}
	repo, err := filestate.NewRepository(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	jar, err := schoolapi.NewPersistentJar(filepath.Join(dir, "cookies.json"), conf.Backend.BaseURL)
	require.NoError(t, err)

	client := schoolapi.NewClientWithJar(conf, log, jar)
	store := session.NewStore(client, repo, log)
	coord := token.NewCoordinator(store.Renew, conf.RefreshInterval(), log)
	coord.OnTerminalFailure(store.ForceLogout)
	client.SetRefresher(coord)
	store.SetCoordinator(coord)
	t.Cleanup(coord.StopProactiveRefresh)

	out := &bytes.Buffer{}
	return &commandLine{
		conf:   conf,
		client: client,
		store:  store,
		jar:    jar,
		out:    out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
	wantOut    string
}

func Test_commandLine_run(t *testing.T) {
	tests := []cliTest{
		{name: "no subcommand", wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"lol"}, wantErr: errHelp},
		{name: "login: no email", args: []string{"login"}, wantErr: errHelp},
		{name: "login: no password", args: []string{"login", "-email", "amina@shule.test"}, wantErr: errHelp},
		{
			name:       "login: rejected",
			args:       []string{"login", "-email", "amina@shule.test"},
			pwd:        "nope",
			wantErrStr: "invalid email or password",
		},
		{
			name:    "login",
			args:    []string{"login", "-email", "amina@shule.test"},
			pwd:     "pwd",
			wantOut: "logged in as amina@shule.test",
		},
		{name: "role: no flags", args: []string{"role"}, wantErr: errHelp},
		{name: "whoami: anonymous", args: []string{"whoami"}, wantOut: "not logged in"},
	}
	for _, tt := range tests {
		args := append([]string{"shulectl"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)

			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				require.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_sessionLifecycle(t *testing.T) {
	cli, out := setup(t)
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("pwd"), nil }

	// login persists the session and the credential cookies
	require.NoError(t, cli.run([]string{"shulectl", "login", "-email", "amina@shule.test"}))
	assert.Contains(t, out.String(), "logged in as amina@shule.test")
	assert.Contains(t, out.String(), "pick one with: role -set ROLE")
	assert.Equal(t, "at1", cli.client.Cookie("access_token"))

	// select a held role
	out.Reset()
	require.NoError(t, cli.run([]string{"shulectl", "role", "-set", "teacher"}))
	assert.Contains(t, out.String(), "active role set to teacher (/teacher)")

	// a role not held is rejected
	err := cli.run([]string{"shulectl", "role", "-set", "admin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not assigned to you")

	// whoami reflects the session
	out.Reset()
	require.NoError(t, cli.run([]string{"shulectl", "whoami"}))
	assert.Contains(t, out.String(), "amina@shule.test")
	assert.Contains(t, out.String(), "teacher, parent")

	out.Reset()
	require.NoError(t, cli.run([]string{"shulectl", "role", "-clear"}))
	assert.Contains(t, out.String(), "active role cleared")

	// logout clears everything
	out.Reset()
	require.NoError(t, cli.run([]string{"shulectl", "logout"}))
	assert.Contains(t, out.String(), "logged out")
	assert.False(t, cli.store.Session().IsAuthenticated)
	assert.Empty(t, cli.client.Cookie("access_token"))

	out.Reset()
	require.NoError(t, cli.run([]string{"shulectl", "whoami"}))
	assert.Contains(t, out.String(), "not logged in")
}
