package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string          relay address and port
//	-k string          relay access token
//	-e string          embedded store: mem, a SQLite path or a postgres DSN
//	-d string          data directory
//	-n int             history limit
//	-t int             remote write timeout (in seconds)
//	-i int             online check interval (in seconds)
//	-l string          log level
//	-s3-bucket string  attachment bucket
//	-s3-region string  attachment bucket region
//	-s3-endpoint url   S3-compatible endpoint
//
// Flags owned by other layers are filtered out before parsing.
func parseFlags(cfg *Config) {
	timeout := int(cfg.RemoteTimeout.Seconds())
	interval := int(cfg.OnlineCheckInterval.Seconds())

	names := []string{"a", "k", "e", "d", "n", "t", "i", "l", "s3-bucket", "s3-region", "s3-endpoint"}
	err := flagx.ParseOwned(os.Args[1:], names, func(fs *flag.FlagSet) {
		fs.StringVar(&cfg.StoreAddr, "a", cfg.StoreAddr, "address and port to access the relay")
		fs.StringVar(&cfg.StoreToken, "k", cfg.StoreToken, "relay access token")
		fs.StringVar(&cfg.EmbeddedStore, "e", cfg.EmbeddedStore, "embedded store DSN")
		fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
		fs.IntVar(&cfg.HistoryLimit, "n", cfg.HistoryLimit, "messages loaded per chat")
		fs.IntVar(&timeout, "t", timeout, "remote write timeout (in seconds)")
		fs.IntVar(&interval, "i", interval, "online check interval (in seconds)")
		fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
		fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "attachment bucket")
		fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "attachment bucket region")
		fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "S3-compatible endpoint")
	})
	if err != nil {
		panic(err)
	}

	cfg.RemoteTimeout = time.Duration(timeout) * time.Second
	cfg.OnlineCheckInterval = time.Duration(interval) * time.Second
}
