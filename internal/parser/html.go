package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser renders HTML bodies as plain text for previews
type HTMLParser struct {
	whitespaceRegex *regexp.Regexp
	invisibleRegex  *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		// ASCII blanks plus no-break spaces, newlines are kept
		whitespaceRegex: regexp.MustCompile(`[\t\f\r \x{00A0}\x{2007}\x{202F}]+`),
		// Zero-width and other invisible characters used by mailers for tracking
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{2060}-\x{2064}]+`),
	}
}

// Text converts HTML to plain text, one block element per line
func (p *HTMLParser) Text(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements start on a new line
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := p.invisibleRegex.ReplaceAllString(doc.Text(), "")
	text = p.whitespaceRegex.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n"), nil
}
