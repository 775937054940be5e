package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		DataDir:               "/tmp/qm",
		LogLevel:              "info",
		Port:                  8010,
		SafetyReserveUsdc:     50,
		MinOrderUsdc:          10,
		LockTimeout:           5 * time.Second,
		LockStaleAfter:        5 * time.Minute,
		PriceFeedTimeout:      10 * time.Second,
		BrokerTimeout:         30 * time.Second,
		DecisionRetentionDays: 90,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "negative safety reserve",
			mutate:  func(c *Config) { c.SafetyReserveUsdc = -1 },
			wantErr: true,
		},
		{
			name:    "zero min order",
			mutate:  func(c *Config) { c.MinOrderUsdc = 0 },
			wantErr: true,
		},
		{
			name:    "zero lock timeout",
			mutate:  func(c *Config) { c.LockTimeout = 0 },
			wantErr: true,
		},
		{
			name: "stale-after shorter than a slow decision",
			mutate: func(c *Config) {
				c.LockStaleAfter = time.Minute
				c.BrokerTimeout = 30 * time.Second
				c.PriceFeedTimeout = 10 * time.Second
			},
			wantErr: true,
		},
		{
			name: "stale-after sized to the timeouts",
			mutate: func(c *Config) {
				c.LockStaleAfter = 10 * time.Minute
				c.BrokerTimeout = time.Minute
				c.PriceFeedTimeout = 30 * time.Second
			},
		},
		{
			name:    "zero retention days",
			mutate:  func(c *Config) { c.DecisionRetentionDays = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
