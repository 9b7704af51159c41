package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	spaceRunRe = regexp.MustCompile(`[ ]{2,}`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Normalize replaces tabs, collapses space runs and blank-line runs, and trims.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// TableRows parses HTML table markup into rows of cell text. Cell text is
// whitespace-trimmed; rows without cells are dropped.
func TableRows(markup string) ([][]string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			collectCells(n, &cells)
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows, nil
}

// FlattenTable renders table markup as one "cell | cell" line per row.
func FlattenTable(markup string) (string, error) {
	rows, err := TableRows(markup)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, strings.Join(r, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

func collectCells(n *html.Node, cells *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			*cells = append(*cells, nodeText(c))
			continue
		}
		collectCells(c, cells)
	}
}

func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
