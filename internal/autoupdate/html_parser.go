package autoupdate

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// Error variables for HTML parser errors
var (
	// ErrInvalidXPath is returned when the XPath expression syntax is invalid
	ErrInvalidXPath = errors.New("invalid XPath expression")
	// ErrNoElementFound is returned when no element matches the selector/xpath
	ErrNoElementFound = errors.New("no element found matching selector")
	// ErrNoSelectorOrXPath is returned when neither selector nor xpath is provided
	ErrNoSelectorOrXPath = errors.New("either selector or xpath must be provided")
)

// HTMLParser extracts a version from a download or release page. Matching
// elements are visited in document order; the first whose text yields a
// non-empty value (after the optional Regex) wins.
type HTMLParser struct {
	// Selector is a CSS selector, evaluated with goquery
	Selector string
	// XPath is used when Selector is empty, evaluated with htmlquery
	XPath string
	// Regex optionally narrows the element text; first capture group or whole match
	Regex    string
	compiled *regexp.Regexp
}

// NewHTMLParser creates an HTMLParser. At least one of selector or xpath
// must be provided.
func NewHTMLParser(selector, xpath, regex string) (*HTMLParser, error) {
	if selector == "" && xpath == "" {
		return nil, ErrNoSelectorOrXPath
	}

	p := &HTMLParser{Selector: selector, XPath: xpath, Regex: regex}
	if regex != "" {
		re, err := regexp.Compile(regex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegexPattern, err)
		}
		p.compiled = re
	}
	return p, nil
}

// Parse extracts a version string from HTML content.
func (p *HTMLParser) Parse(content []byte) (string, error) {
	if p.Selector == "" && p.XPath == "" {
		return "", ErrNoSelectorOrXPath
	}
	if p.Regex != "" && p.compiled == nil {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRegexPattern, err)
		}
		p.compiled = re
	}

	var (
		texts []string
		err   error
	)
	if p.Selector != "" {
		texts, err = p.textsByCSS(content)
	} else {
		texts, err = p.textsByXPath(content)
	}
	if err != nil {
		return "", err
	}

	for _, text := range texts {
		if v := p.narrow(text); v != "" {
			return v, nil
		}
	}

	if p.compiled != nil {
		return "", fmt.Errorf("%w: pattern %q did not match any element", ErrRegexNoMatch, p.Regex)
	}
	return "", ErrNoVersionFound
}

func (p *HTMLParser) textsByCSS(content []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	selection := doc.Find(p.Selector)
	if selection.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoElementFound, p.Selector)
	}
	return selection.Map(func(_ int, s *goquery.Selection) string {
		return s.Text()
	}), nil
}

func (p *HTMLParser) textsByXPath(content []byte) ([]string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, p.XPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXPath, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoElementFound, p.XPath)
	}

	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i] = htmlquery.InnerText(n)
	}
	return texts, nil
}

// narrow applies Regex to text and trims the result; "" means no match.
func (p *HTMLParser) narrow(text string) string {
	if p.compiled == nil {
		return strings.TrimSpace(text)
	}
	m := p.compiled.FindStringSubmatch(text)
	switch {
	case m == nil:
		return ""
	case len(m) > 1 && m[1] != "":
		return strings.TrimSpace(m[1])
	default:
		return strings.TrimSpace(m[0])
	}
}
