package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// EnvPrefix prefixes the environment variable that supplies a flag default,
// e.g. VKCONFIG_LOG_FORMAT for --log-format.
const EnvPrefix = "VKCONFIG_"

// --config keeps its own lookup so the preferences source stays "env".
var envExempt = map[string]struct{}{"config": {}, "help": {}}

// EnvName returns the environment variable bound to flag name.
func EnvName(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// bindEnvironment fills every flag not given on the command line from its
// environment variable.
func bindEnvironment(flags *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var firstErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed || firstErr != nil {
			return
		}
		if _, skip := envExempt[flag.Name]; skip {
			return
		}
		value, ok := lookup(EnvName(flag.Name))
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		if err := flags.Set(flag.Name, value); err != nil {
			firstErr = fmt.Errorf("%s: %w", EnvName(flag.Name), err)
		}
	})
	return firstErr
}
