// Package config handles configuration for the relay,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the relay.
//
// Fields:
//   - ListenAddr: bind address of the gRPC endpoint.
//   - DatabaseDSN: "postgres://..." selects PostgreSQL, "mem" keeps records
//     in memory, anything else is a SQLite file path.
//   - SecretKey: HMAC secret for access tokens. Empty disables auth.
//   - TokenTTL: lifetime of tokens printed by IssueToken.
//   - IssueToken: when set, print a token for this user id and exit.
type Config struct {
	ListenAddr  string
	DatabaseDSN string
	SecretKey   string
	TokenTTL    time.Duration
	IssueToken  string
	LogLevel    string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":50051"
	c.DatabaseDSN = "relay.db"
	c.SecretKey = ""
	c.TokenTTL = 24 * time.Hour
	c.IssueToken = ""
	c.LogLevel = "info"
}

// LoadConfig applies defaults, then the optional JSON file, then flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
