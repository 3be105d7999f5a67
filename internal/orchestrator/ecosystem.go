package orchestrator

import (
	"os"
	"path/filepath"
)

// ecosystemSignature maps one filesystem marker to the default test
// command run when TaskContext names no explicit test_commands.
// Order matters: the first marker found wins.
type ecosystemSignature struct {
	markers []string
	command string
}

var ecosystemSignatures = []ecosystemSignature{
	{[]string{"package.json"}, "npm test"},
	{[]string{"pyproject.toml", "pytest.ini", "requirements.txt"}, "pytest"},
	{[]string{"go.mod"}, "go test ./..."},
	{[]string{"Cargo.toml"}, "cargo test"},
	{[]string{"Gemfile"}, "bundle exec rspec"},
	{[]string{"pom.xml"}, "mvn test"},
	{[]string{"build.gradle", "build.gradle.kts"}, "gradle test"},
}

// detectTestCommand inspects workspacePath for a known ecosystem
// marker and returns its default test command. ok is false if no
// marker matches, in which case phase 3 has nothing to run.
func detectTestCommand(workspacePath string) (command string, ok bool) {
	for _, sig := range ecosystemSignatures {
		for _, marker := range sig.markers {
			if fileExists(filepath.Join(workspacePath, marker)) {
				return sig.command, true
			}
		}
	}
	return "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
