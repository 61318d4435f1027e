// Package hostid resolves the identifier of the machine performing
// local inspections. The identifier namespaces persisted views per
// originating host; it is resolved once at startup and threaded into
// the pipeline as a plain value rather than looked up per call.
package hostid

import (
	"fmt"
	"os"
	"strings"
)

// Current returns the short hostname of this machine.
func Current() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to resolve hostname: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("hostname is empty")
	}

	// Some platforms report the fully qualified name; the short form
	// is the stable identifier.
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name, nil
}
