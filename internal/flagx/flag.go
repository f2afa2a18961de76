// Package flagx lets several configuration layers share one command line.
// Each layer filters os.Args down to the flags it owns before parsing, so the
// JSON-path lookup and the per-binary flag sets never reject each other's
// flags.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs keeps only the allowed flags and their values. Both "-f value"
// and "-f=value" forms are recognized; a following argument counts as the
// value unless it starts with '-'.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ParseOwned parses only the named flags out of args into a fresh flag set
// configured by define. Names are given without the leading dash.
func ParseOwned(args []string, names []string, define func(fs *flag.FlagSet)) error {
	allowed := make([]string, 0, len(names)*2)
	for _, n := range names {
		allowed = append(allowed, "-"+n, "--"+n)
	}

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	define(fs)
	return fs.Parse(FilterArgs(args, allowed))
}

// ConfigPath returns the value of -c / -config from args, or "".
func ConfigPath(args []string) string {
	var path string
	_ = ParseOwned(args, []string{"c", "config"}, func(fs *flag.FlagSet) {
		fs.StringVar(&path, "config", "", "path to config file")
		fs.StringVar(&path, "c", "", "path to config file (short)")
	})
	return path
}

// JsonConfigFlags returns the config file path given on the process command line.
func JsonConfigFlags() string {
	return ConfigPath(os.Args[1:])
}
