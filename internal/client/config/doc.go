// Package config loads runtime configuration for the chatsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "store_addr": "127.0.0.1:50051",
//	  "store_token": "eyJ...",
//	  "data_dir": "./chatsync-data",
//	  "history_limit": 50,
//	  "remote_timeout": "15s",
//	  "online_check_interval": "3s",
//	  "s3_bucket": "chat-files"
//	}
//
// S3 credentials are read from JSON only; when absent the default AWS
// credential chain applies.
package config
