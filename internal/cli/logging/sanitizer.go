package logging

import (
	"path/filepath"
	"regexp"
	"strings"
)

const redacted = "***"

var sensitiveWords = []string{"password", "passphrase", "secret", "token", "apikey", "api_key", "credential", "privatekey"}

// Loader and XDG variables never carry credentials and are printed as is.
var plainEnvKeys = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true, "PWD": true,
	"LANG": true, "LC_ALL": true, "TMPDIR": true, "TERM": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_DATA_DIRS": true,
	"VK_LAYER_PATH": true, "VK_ADD_LAYER_PATH": true, "VK_INSTANCE_LAYERS": true,
	"VK_LOADER_DEBUG": true, "VK_LOADER_LAYERS_ENABLE": true, "VK_LOADER_LAYERS_DISABLE": true,
}

func sensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// SanitizeCommand joins a launched command line for display. KEY=VALUE
// arguments with a sensitive key lose their value, and so does the argument
// following a sensitive flag such as --password.
func SanitizeCommand(args []string) string {
	out := make([]string, len(args))
	hideNext := false
	for i, arg := range args {
		switch {
		case hideNext:
			out[i] = redacted
			hideNext = false
			continue
		case strings.Index(arg, "=") > 0:
			key, _, _ := strings.Cut(arg, "=")
			if sensitive(key) {
				out[i] = key + "=" + redacted
				continue
			}
		case strings.HasPrefix(arg, "-"):
			hideNext = sensitive(arg)
		}
		out[i] = arg
	}
	return strings.Join(out, " ")
}

// SanitizeEnv copies env, masking the values of sensitive variables.
func SanitizeEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for key, value := range env {
		if !plainEnvKeys[key] && sensitive(key) {
			value = redacted
		}
		out[key] = value
	}
	return out
}

var secretAssignment = regexp.MustCompile(`(?i)(password|passphrase|secret|token|apikey|api_key|privatekey)=\S{1,128}`)

// SanitizeText masks key=value secrets inside free-form text such as the
// tail of a launched application's output.
func SanitizeText(text string) string {
	return secretAssignment.ReplaceAllString(text, "${1}="+redacted)
}

// ShortenHome rewrites a path below home as ~/...
func ShortenHome(path, home string) string {
	if path == "" || home == "" {
		return path
	}
	home = filepath.Clean(home)
	clean := filepath.Clean(path)
	if clean == home {
		return "~"
	}
	rel, err := filepath.Rel(home, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.Join("~", rel)
}
