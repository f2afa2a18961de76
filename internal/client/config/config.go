package config

import "time"

// Config holds runtime settings for the chatsync CLI.
//
// Fields:
//   - StoreAddr: host:port of the relay gRPC endpoint.
//   - StoreToken: access token sent to the relay. Empty sends none.
//   - EmbeddedStore: when set, the client runs its own store instead of
//     dialing the relay: "mem" keeps records in memory, "postgres://..."
//     selects PostgreSQL, anything else is a SQLite file path.
//   - DataDir: directory holding user.json, settings.json, shared files and
//     the download log.
//   - HistoryLimit: messages loaded when a chat is opened.
//   - RemoteTimeout: bound on every remote write.
//   - OnlineCheckInterval: how often the client checks store reachability.
//   - LogLevel: debug, info, warn or error.
//   - S3*: object storage for attachments. An empty bucket keeps files on
//     the local share.
type Config struct {
	StoreAddr           string
	StoreToken          string
	EmbeddedStore       string
	DataDir             string
	HistoryLimit        int
	RemoteTimeout       time.Duration
	OnlineCheckInterval time.Duration
	LogLevel            string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.StoreAddr = "127.0.0.1:50051"
	c.StoreToken = ""
	c.EmbeddedStore = ""
	c.DataDir = "./chatsync-data"
	c.HistoryLimit = 50
	c.RemoteTimeout = 15 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
