// Package flagx lets several flag sets share one command line. The server,
// the mail client and the migrator each parse their global flags from
// anywhere in os.Args and hand the remainder to a subcommand.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// partition splits args into the flags named in names, with their values,
// and everything else. Both "-f value" and "-f=value" are recognised; a token
// starting with "-" is never taken as a value.
func partition(args []string, names []string) (matched, rest []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}

	matched = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if set[name] {
				matched = append(matched, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if !set[arg] {
			rest = append(rest, arg)
			continue
		}
		matched = append(matched, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			matched = append(matched, args[i])
		}
	}
	return matched, rest
}

// FilterArgs keeps only the flags in allowedFlags and their values.
func FilterArgs(args []string, allowedFlags []string) []string {
	matched, _ := partition(args, allowedFlags)
	return matched
}

// StripFlags drops the flags in knownFlags and their values.
func StripFlags(args []string, knownFlags []string) []string {
	_, rest := partition(args, knownFlags)
	return rest
}

// Command splits a "<command> [flags...]" argument list. An empty command is
// returned when args is empty or starts with a flag.
func Command(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", args
	}
	return args[0], args[1:]
}

// JsonConfigFlags returns the path given via -c or -config, or "" if none.
// The last occurrence wins.
func JsonConfigFlags() string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "config file")
	fs.StringVar(&path, "c", "", "config file (short)")
	_ = fs.Parse(FilterArgs(os.Args[1:], []string{"-c", "-config"}))

	return path
}
