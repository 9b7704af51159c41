package layout

import (
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint collapses whitespace and lower-cases s.
func Fingerprint(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Fingerprints returns the normalized texts a paragraph is matched against:
// every non-empty cell, every row and the table as a whole.
func (t Table) Fingerprints() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	var whole []string
	for _, row := range t.Rows {
		var cells []string
		for _, c := range row {
			fp := Fingerprint(c.Text)
			add(fp)
			if fp != "" {
				cells = append(cells, fp)
			}
		}
		if len(cells) > 0 {
			add(strings.Join(cells, " "))
			whole = append(whole, cells...)
		}
	}
	add(strings.Join(whole, " "))
	return out
}

// HTML serializes the table as <table><tr><td>..</td></tr></table>.
func (t Table) HTML() string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, c := range row {
			tag := "td"
			if c.Header {
				tag = "th"
			}
			b.WriteString("<" + tag + ">")
			b.WriteString(html.EscapeString(strings.TrimSpace(c.Text)))
			b.WriteString("</" + tag + ">")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
