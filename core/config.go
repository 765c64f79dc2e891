package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Debug    bool
	TestMode bool
	Env      string // DEV (local; default), TEST, QA, PROD
	AppName  string
	Build    string

	RollbarToken string

	Backend struct {
		BaseURL string
		Timeout time.Duration // 0 = no timeout
	}

	Token struct {
		Lifetime         time.Duration
		RefreshThreshold float64
	}

	Portal struct {
		Addr            string
		AccessCookie    string
		RefreshCookie   string
		LoginPath       string
		PublicPrefixes  []string
		ShutdownTimeout time.Duration
	}

	State struct {
		Backend  string // inmem | file | redis | postgres
		FilePath string
		Redis    struct {
			Addr     string
			Password string
			DB       int
		}
		Database struct {
			URL string
		}
	}
}

// RefreshInterval is the proactive refresh schedule: a fixed fraction of the
// access token lifetime (15min x 0.75 = 11min15s by default). The schedule is
// fixed; it does not adapt to the actual server-side expiry.
func (conf *Config) RefreshInterval() time.Duration {
	return time.Duration(float64(conf.Token.Lifetime) * conf.Token.RefreshThreshold)
}

func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Shule")
	v.SetDefault("build", "dev")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("backend.baseURL", "http://localhost:8000")
	v.SetDefault("backend.timeout", time.Duration(0))
	v.SetDefault("token.lifetime", 15*time.Minute)
	v.SetDefault("token.refreshThreshold", 0.75)
	v.SetDefault("portal.addr", ":3000")
	v.SetDefault("portal.accessCookie", "access_token")
	v.SetDefault("portal.refreshCookie", "refresh_token")
	v.SetDefault("portal.loginPath", "/auth/login")
	v.SetDefault("portal.publicPrefixes", []string{"/auth", "/about", "/contact", "/static", "/api", "/metrics", "/healthz"})
	v.SetDefault("portal.shutdownTimeout", 20*time.Second)
	v.SetDefault("state.backend", "file")
	v.SetDefault("state.filePath", "")
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.database.url", "")

	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Env:          env,
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		RollbarToken: v.GetString("rollbarToken"),
	}
	conf.Backend.BaseURL = strings.TrimRight(v.GetString("backend.baseURL"), "/")
	conf.Backend.Timeout = v.GetDuration("backend.timeout")
	conf.Token.Lifetime = v.GetDuration("token.lifetime")
	conf.Token.RefreshThreshold = v.GetFloat64("token.refreshThreshold")
	conf.Portal.Addr = v.GetString("portal.addr")
	conf.Portal.AccessCookie = v.GetString("portal.accessCookie")
	conf.Portal.RefreshCookie = v.GetString("portal.refreshCookie")
	conf.Portal.LoginPath = v.GetString("portal.loginPath")
	conf.Portal.PublicPrefixes = v.GetStringSlice("portal.publicPrefixes")
	conf.Portal.ShutdownTimeout = v.GetDuration("portal.shutdownTimeout")
	conf.State.Backend = v.GetString("state.backend")
	conf.State.FilePath = v.GetString("state.filePath")
	conf.State.Redis.Addr = v.GetString("state.redis.addr")
	conf.State.Redis.Password = v.GetString("state.redis.password")
	conf.State.Redis.DB = v.GetInt("state.redis.db")
	conf.State.Database.URL = v.GetString("state.database.url")
	return conf, nil
}
