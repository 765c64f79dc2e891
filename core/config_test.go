package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_defaults(t *testing.T) {
	conf, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, conf.Token.Lifetime)
	assert.Equal(t, 0.75, conf.Token.RefreshThreshold)
	assert.Equal(t, "access_token", conf.Portal.AccessCookie)
	assert.Equal(t, "refresh_token", conf.Portal.RefreshCookie)
	assert.Equal(t, "/auth/login", conf.Portal.LoginPath)
	assert.NotEmpty(t, conf.Portal.PublicPrefixes)
	assert.Equal(t, "http://localhost:8000", conf.Backend.BaseURL)
}

func TestConfig_RefreshInterval(t *testing.T) {
	tests := []struct {
		name      string
		lifetime  time.Duration
		threshold float64
		want      time.Duration
	}{
		{name: "defaults", lifetime: 15 * time.Minute, threshold: 0.75, want: 11*time.Minute + 15*time.Second},
		{name: "half", lifetime: time.Hour, threshold: 0.5, want: 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := &Config{}
			conf.Token.Lifetime = tt.lifetime
			conf.Token.RefreshThreshold = tt.threshold
			assert.Equal(t, tt.want, conf.RefreshInterval())
		})
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "amina@shule.test", CleanString("  Amina@Shule.Test ", true))
	assert.Equal(t, "Amina", CleanString("\tAmina\n"))
}
