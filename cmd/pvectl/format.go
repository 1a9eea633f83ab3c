package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marcus-qen/pvego/internal/access"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"

	// long comments and key lists are clipped in the table view
	maxCellWidth = 48
)

// fieldTable is a two-column FIELD/VALUE listing.
type fieldTable struct {
	rows [][2]string
}

func (t *fieldTable) add(field, value string) {
	t.rows = append(t.rows, [2]string{field, value})
}

// render writes the table with the field column padded to its widest entry.
// Values are written as-is so colored cells keep their escapes.
func (t *fieldTable) render(out io.Writer) {
	width := len("FIELD")
	for _, row := range t.rows {
		width = max(width, visibleLen(row[0]))
	}
	valueWidth := len("VALUE")
	for _, row := range t.rows {
		valueWidth = max(valueWidth, visibleLen(row[1]))
	}

	fmt.Fprintf(out, "%s  %s\n", padRight("FIELD", width), "VALUE")
	fmt.Fprintf(out, "%s  %s\n", strings.Repeat("-", width), strings.Repeat("-", valueWidth))
	for _, row := range t.rows {
		fmt.Fprintf(out, "%s  %s\n", padRight(row[0], width), row[1])
	}
}

func padRight(v string, width int) string {
	if pad := width - visibleLen(v); pad > 0 {
		return v + strings.Repeat(" ", pad)
	}
	return v
}

// visibleLen counts runes outside ANSI escape sequences.
func visibleLen(s string) int {
	inEscape := false
	count := 0
	for _, ch := range s {
		switch {
		case inEscape:
			inEscape = ch != 'm'
		case ch == 0x1b:
			inEscape = true
		default:
			count++
		}
	}
	return count
}

func printUser(env commandEnv, info access.UserInfo) error {
	if env.cfg.jsonOutput {
		return writeJSON(env.out, info)
	}

	var t fieldTable
	t.add("userid", info.UserID)
	t.add("status", accountStatus(info.Enabled))
	t.add("firstname", dash(info.FirstName))
	t.add("lastname", dash(info.LastName))
	t.add("email", dash(info.Email))
	t.add("comment", clip(dash(info.Comment), maxCellWidth))
	t.add("groups", dash(strings.Join(info.Groups, ",")))
	t.add("expire", expiryLabel(info.Expire))
	t.add("keys", clip(dash(info.Keys), maxCellWidth))
	t.render(env.out)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func accountStatus(enabled bool) string {
	if enabled {
		return ansiGreen + "enabled" + ansiReset
	}
	return ansiRed + "disabled" + ansiReset
}

// clip shortens s to n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:max(n, 0)])
	}
	return string(r[:n-1]) + "…"
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// expiryLabel renders a PVE expiry timestamp; zero means the account never
// expires.
func expiryLabel(unix int64) string {
	if unix == 0 {
		return "never"
	}
	return time.Unix(unix, 0).UTC().Format(time.DateTime)
}
