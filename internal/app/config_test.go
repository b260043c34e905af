package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL: "postgres://localhost/shop",
			Order:       OrderConfig{NumberPrefix: "ORD", Transitions: "forward_only"},
		}
	}

	ok := valid()
	require.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }},
		{name: "unknown policy", mutate: func(c *Config) { c.Order.Transitions = "strict" }},
		{name: "negative upload size", mutate: func(c *Config) { c.Storage.MaxUploadSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	c := Config{Addr: "0.0.0.0:8080"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", c.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", c.Addr)

	c = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", c.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", c.Addr)
}
