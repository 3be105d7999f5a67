package permission

import (
	"regexp"

	"github.com/kiln-run/runner/internal/domain"
)

// denyPatterns match shell commands the Permission Gate must refuse
// regardless of workspace confinement: recursive deletion from root,
// privilege escalation, user switching, world-writable grants, piping
// from network fetchers into a shell, arbitrary code evaluation, and
// references to system configuration paths.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[a-zA-Z]*r[a-zA-Z]*f?[a-zA-Z]*\s+/(\s|$)`),
	regexp.MustCompile(`rm\s+-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*\s+/(\s|$)`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bdoas\b`),
	regexp.MustCompile(`chmod\s+([0-7]{0,2}7{3}|[-+=]?\w*o\+w)`),
	regexp.MustCompile(`(curl|wget)[^|]*\|\s*(sh|bash|zsh)\b`),
	regexp.MustCompile(`\beval\b`),
	regexp.MustCompile(`\bexec\s+\$`),
	regexp.MustCompile(`/etc/(passwd|shadow|sudoers)\b`),
	regexp.MustCompile(`/etc/cron`),
}

// CheckCommand rejects command if it matches any deny pattern.
func (g *Gate) CheckCommand(command string) error {
	for _, pattern := range denyPatterns {
		if pattern.MatchString(command) {
			return domain.NewRunnerError(domain.KindSecurityFailure,
				"command matches a denied pattern: "+command, nil)
		}
	}
	return nil
}
