package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"policyrag/internal/chunker"
	"policyrag/internal/domain"
)

var (
	fenceRe  = regexp.MustCompile("(?i)```(?:json)?")
	objectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// BuildContent renders blocks as plain text with a "=== PAGE n ===" marker
// before each page. Tables are laid out as padded columns.
func BuildContent(blocks []domain.Block) string {
	var parts []string
	current := 0
	for _, b := range blocks {
		if b.PageNumber != current {
			parts = append(parts, fmt.Sprintf("\n\n=== PAGE %d ===\n", b.PageNumber))
			current = b.PageNumber
		}
		switch b.Type {
		case domain.BlockParagraph:
			if t := strings.TrimSpace(b.Content); t != "" {
				parts = append(parts, t)
			}
		case domain.BlockTable:
			if t := renderTable(b.Content); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func renderTable(markup string) string {
	rows, err := chunker.TableRows(markup)
	if err != nil || len(rows) == 0 {
		return ""
	}
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	widths := make([]int, cols)
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		cells := make([]string, cols)
		for i := range cells {
			c := ""
			if i < len(r) {
				c = r[i]
			}
			cells[i] = c + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c))
		}
		lines = append(lines, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	return strings.Join(lines, "\n")
}

// ExtractJSON decodes the first JSON object in a model reply, ignoring code
// fences and surrounding prose.
func ExtractJSON(reply string, v any) error {
	cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(reply, ""))
	match := objectRe.FindString(cleaned)
	if match == "" {
		return errors.New("no JSON found in model response")
	}
	if err := json.Unmarshal([]byte(match), v); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

// flexString accepts a JSON string or number, e.g. page_number 3 or "3".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexBool accepts true/false or their string forms ("yes", "no", "true").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		*f = true
	case "no", "false", "0", "":
		*f = false
	default:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", s)
		}
		*f = flexBool(v)
	}
	return nil
}
