package codec

import "strings"

// EncodeHeaders renders one "<key>: <value>" line per entry, in order.
// Keys and values are passed through verbatim; nothing is escaped.
func EncodeHeaders(headers Pairs) []string {
	lines := make([]string, 0, len(headers))
	for _, h := range headers {
		lines = append(lines, h.Key+": "+h.Value)
	}
	return lines
}

// EncodeCookies joins every entry as KEY=VALUE separated by ';' with no
// trailing separator. The PVE auth layer rejects any other cookie format.
func EncodeCookies(cookies Pairs) string {
	if len(cookies) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range cookies {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(c.Key)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

// SplitHeaderLine reverses one EncodeHeaders line into key and value.
func SplitHeaderLine(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, ": ")
	if !ok || key == "" {
		return "", "", false
	}
	return key, value, true
}
