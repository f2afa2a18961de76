package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/flagx"
)

// parseFlags populates Config from command-line flags.
//
//	-a string        gRPC bind address
//	-d string        database DSN
//	-s string        token secret
//	-t int           token lifetime, minutes
//	-l string        log level
//	-issue-token id  print an access token for id and exit
func parseFlags(config *Config) {
	ttl := int(config.TokenTTL.Minutes())

	err := flagx.ParseOwned(os.Args[1:], []string{"a", "d", "s", "t", "l", "issue-token"}, func(fs *flag.FlagSet) {
		fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to listen on")
		fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
		fs.StringVar(&config.SecretKey, "s", config.SecretKey, "access token secret")
		fs.IntVar(&ttl, "t", ttl, "token lifetime (in minutes)")
		fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
		fs.StringVar(&config.IssueToken, "issue-token", config.IssueToken, "print a token for the user id and exit")
	})
	if err != nil {
		panic(err)
	}

	config.TokenTTL = time.Duration(ttl) * time.Minute
}
