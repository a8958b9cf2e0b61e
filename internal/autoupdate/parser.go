package autoupdate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error variables for parser errors
var (
	// ErrJSONPathNotFound is returned when the JSON path does not exist in the document
	ErrJSONPathNotFound = errors.New("JSON path not found in response")
	// ErrRegexNoMatch is returned when the regex pattern does not match the content
	ErrRegexNoMatch = errors.New("regex pattern did not match")
	// ErrNoVersionFound is returned when no version could be extracted from upstream
	ErrNoVersionFound = errors.New("could not extract version from upstream")
	// ErrInvalidJSONPath is returned when the JSON path syntax is invalid
	ErrInvalidJSONPath = errors.New("invalid JSON path syntax")
	// ErrInvalidRegexPattern is returned when the regex pattern is invalid
	ErrInvalidRegexPattern = errors.New("invalid regex pattern")
	// ErrNoCaptureGroup is returned when the regex pattern has no capture group
	ErrNoCaptureGroup = errors.New("regex pattern must contain at least one capture group")
)

// Parser extracts a raw version string from fetched content.
type Parser interface {
	Parse(content []byte) (string, error)
}

// ParserSpec selects and configures a Parser.
type ParserSpec struct {
	Kind     string // "json", "regex" or "html"
	Path     string
	Pattern  string
	Selector string
	XPath    string
}

// Validate checks that the fields Kind needs are present and compile.
func (s ParserSpec) Validate() error {
	_, err := NewParser(s)
	return err
}

// NewParser builds the parser described by spec.
func NewParser(spec ParserSpec) (Parser, error) {
	switch spec.Kind {
	case "json":
		if spec.Path == "" {
			return nil, ErrMissingPath
		}
		if _, err := parseJSONPath(spec.Path); err != nil {
			return nil, err
		}
		return &JSONParser{Path: spec.Path}, nil
	case "regex":
		if spec.Pattern == "" {
			return nil, ErrMissingPattern
		}
		p, err := NewRegexParser(spec.Pattern)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "html":
		p, err := NewHTMLParser(spec.Selector, spec.XPath, spec.Pattern)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidParserType, spec.Kind)
	}
}

// ExtractVersion runs the primary parser over content and, if that fails,
// the fallback parser when one is given.
func ExtractVersion(content []byte, primary ParserSpec, fallback *ParserSpec) (string, error) {
	parser, err := NewParser(primary)
	if err != nil {
		return "", fmt.Errorf("failed to create primary parser: %w", err)
	}

	version, primaryErr := parser.Parse(content)
	if primaryErr == nil {
		return version, nil
	}

	if fallback != nil {
		fp, err := NewParser(*fallback)
		if err != nil {
			return "", fmt.Errorf("primary parser failed (%w), fallback parser creation failed: %v", primaryErr, err)
		}
		if version, err := fp.Parse(content); err == nil {
			return version, nil
		}
	}

	return "", fmt.Errorf("%w: %v", ErrNoVersionFound, primaryErr)
}

// JSONParser extracts version using a JSON path.
// The path supports dot notation and array indexing (e.g., "results[0].pkgver").
type JSONParser struct {
	Path string
}

// Parse extracts a version string from JSON content using the configured path.
func (p *JSONParser) Parse(content []byte) (string, error) {
	if p.Path == "" {
		return "", ErrInvalidJSONPath
	}

	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}

	result, err := navigateJSONPath(data, p.Path)
	if err != nil {
		return "", err
	}

	version, ok := toString(result)
	if !ok {
		return "", fmt.Errorf("%w: value at path is not a scalar", ErrJSONPathNotFound)
	}
	if strings.TrimSpace(version) == "" {
		return "", fmt.Errorf("%w: value at path is empty", ErrJSONPathNotFound)
	}
	return version, nil
}

func navigateJSONPath(data interface{}, path string) (interface{}, error) {
	segments, err := parseJSONPath(path)
	if err != nil {
		return nil, err
	}

	current := data
	for _, seg := range segments {
		if seg.field != "" {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: expected object at %q", ErrJSONPathNotFound, seg.field)
			}
			val, exists := obj[seg.field]
			if !exists {
				return nil, fmt.Errorf("%w: field %q not found", ErrJSONPathNotFound, seg.field)
			}
			current = val
			continue
		}

		arr, ok := current.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: expected array at index %d", ErrJSONPathNotFound, seg.index)
		}
		if seg.index >= len(arr) {
			return nil, fmt.Errorf("%w: array index %d out of bounds (length %d)", ErrJSONPathNotFound, seg.index, len(arr))
		}
		current = arr[seg.index]
	}

	return current, nil
}

// pathSegment is either a field name or, when field is empty, an array index
type pathSegment struct {
	field string
	index int
}

// parseJSONPath splits "data.releases[0].tag" into segments.
func parseJSONPath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	remaining := path

	for remaining != "" {
		remaining = strings.TrimPrefix(remaining, ".")
		if remaining == "" {
			break
		}
		if remaining[0] == '[' {
			return nil, fmt.Errorf("%w: unexpected '[' at start", ErrInvalidJSONPath)
		}

		end := strings.IndexAny(remaining, ".[")
		if end == -1 {
			end = len(remaining)
		}
		if end == 0 {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidJSONPath)
		}
		segments = append(segments, pathSegment{field: remaining[:end]})
		remaining = remaining[end:]

		for strings.HasPrefix(remaining, "[") {
			closeBracket := strings.Index(remaining, "]")
			if closeBracket == -1 {
				return nil, fmt.Errorf("%w: unclosed bracket", ErrInvalidJSONPath)
			}

			indexStr := remaining[1:closeBracket]
			index, err := strconv.Atoi(indexStr)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid array index %q", ErrInvalidJSONPath, indexStr)
			}
			if index < 0 {
				return nil, fmt.Errorf("%w: negative array index", ErrInvalidJSONPath)
			}

			segments = append(segments, pathSegment{index: index})
			remaining = remaining[closeBracket+1:]
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidJSONPath)
	}
	return segments, nil
}

// toString renders JSON scalars; JSON numbers arrive as float64
func toString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

// RegexParser extracts the first capture group of Pattern.
type RegexParser struct {
	Pattern  string
	compiled *regexp.Regexp
}

// NewRegexParser compiles pattern and requires at least one capture group.
func NewRegexParser(pattern string) (*RegexParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegexPattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, ErrNoCaptureGroup
	}
	return &RegexParser{Pattern: pattern, compiled: re}, nil
}

// Parse returns the first capture group of the first match.
func (p *RegexParser) Parse(content []byte) (string, error) {
	if p.compiled == nil {
		compiled, err := NewRegexParser(p.Pattern)
		if err != nil {
			return "", err
		}
		p.compiled = compiled.compiled
	}

	matches := p.compiled.FindSubmatch(content)
	if len(matches) < 2 {
		return "", ErrRegexNoMatch
	}

	version := string(matches[1])
	if version == "" {
		return "", fmt.Errorf("%w: capture group matched empty string", ErrRegexNoMatch)
	}
	return version, nil
}
