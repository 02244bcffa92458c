package pf

import (
	"fmt"
	"strings"
	"time"
)

// RenderConfig renders the directive list into the anchor rules file loaded
// by pfctl. The header records the generation time so operators can tell a
// stale file from a current one; an empty directive list still renders a
// valid file that loads cleanly.
func RenderConfig(directives []string, generatedAt time.Time) []byte {
	var b strings.Builder
	b.WriteString("# blockd packet filter rules\n")
	fmt.Fprintf(&b, "# generated %s\n", generatedAt.UTC().Format(time.RFC3339))
	b.WriteString("# managed by blockd, manual edits are overwritten\n")
	if len(directives) > 0 {
		b.WriteString("\n")
	}
	for _, d := range directives {
		b.WriteString(d)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
