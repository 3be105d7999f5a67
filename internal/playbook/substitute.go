package playbook

import (
	"log/slog"
	"regexp"
)

var varPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Substitute rewrites every ${name} occurrence in command with the
// string form of ctx[name]. Unresolved variables are left literal and
// logged as a warning via logger.
func Substitute(command string, ctx Context, logger *slog.Logger) string {
	return varPattern.ReplaceAllStringFunc(command, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]

		v, ok := ctx[name]
		if !ok {
			if logger != nil {
				logger.Warn("playbook variable left unresolved", "variable", name)
			}
			return match
		}
		return asString(v)
	})
}
