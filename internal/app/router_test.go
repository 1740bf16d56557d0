package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/config"
)

func TestSanitizeAllowedOrigins(t *testing.T) {
	got := sanitizeAllowedOrigins([]string{
		"  http://localhost:3000  ",
		"",
		"*",
		"http://localhost:3000",
		"https://example.com",
	})

	require.Equal(t, []string{
		"http://localhost:3000",
		"https://example.com",
	}, got)
}

func TestBuildCORSConfig_AllowAllForcesCredentialsOff(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			UnsafeAllowAllOrigins: true,
			AllowCredentials:      true,
		},
	}

	corsCfg := buildCORSConfig(cfg)
	require.True(t, corsCfg.AllowAllOrigins)
	require.False(t, corsCfg.AllowCredentials)
}

func TestBuildCORSConfig_UsesDefaultOriginsWhenEmpty(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			UnsafeAllowAllOrigins: false,
			AllowedOrigins:        []string{"", "*", "   "},
			AllowCredentials:      true,
		},
	}

	corsCfg := buildCORSConfig(cfg)
	require.False(t, corsCfg.AllowAllOrigins)
	require.Equal(t, []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}, corsCfg.AllowOrigins)
	require.True(t, corsCfg.AllowCredentials)
}
