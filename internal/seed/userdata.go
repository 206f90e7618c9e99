package seed

import (
	"fmt"
	"strings"
)

// renderUserData produces the user-data configuration document: the
// marker header, the authorised key, password auth disabled, and the
// first-boot command list led by the readiness sentinel write.
func renderUserData(authorizedKey string, extraCommands []string) []byte {
	var b strings.Builder

	b.WriteString("#cloud-config\n")
	b.WriteString("ssh_authorized_keys:\n")
	fmt.Fprintf(&b, "  - %s\n", strings.TrimSpace(authorizedKey))
	b.WriteString("ssh_pwauth: false\n")
	b.WriteString("disable_root: false\n")
	b.WriteString("runcmd:\n")
	fmt.Fprintf(&b, "  - %s\n", quoteCommand(fmt.Sprintf("echo %s > /dev/ttyS0", ReadySentinel)))

	for _, cmd := range extraCommands {
		fmt.Fprintf(&b, "  - %s\n", quoteCommand(cmd))
	}

	return []byte(b.String())
}

// quoteCommand wraps a shell command so the NoCloud runcmd list can
// carry it as a single scalar: single-quoted, with any embedded single
// quote escaped as the standard '"'"' sequence.
func quoteCommand(cmd string) string {
	escaped := strings.ReplaceAll(cmd, `'`, `'"'"'`)
	return "'" + escaped + "'"
}
