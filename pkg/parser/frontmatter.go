package parser

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Frontmatter holds the fields recognized in artifact frontmatter. Unknown
// keys are ignored so user additions survive.
type Frontmatter struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Status      string `yaml:"status"`
	Created     string `yaml:"created"`
	CreatedBy   string `yaml:"created_by"`
	LastUpdated string `yaml:"last_updated"`
	Branch      string `yaml:"branch"`
	Repository  string `yaml:"repository"`
	Parent      string `yaml:"parent"`
	AssignedTo  string `yaml:"assigned_to"`
}

var frontmatterDelim = []byte("---")

// ParseFrontmatter splits a markdown document into its YAML frontmatter and
// body. Documents without a frontmatter block, or with YAML that does not
// decode, yield a zero Frontmatter and a non-nil error; callers treat that as
// an empty-frontmatter markdown file rather than a failure.
func ParseFrontmatter(data []byte) (Frontmatter, string, error) {
	var fm Frontmatter

	trimmed := bytes.TrimLeft(data, "\uFEFF\r\n\t ")
	if !bytes.HasPrefix(trimmed, frontmatterDelim) {
		return fm, string(data), fmt.Errorf("no frontmatter block")
	}

	rest := trimmed[len(frontmatterDelim):]
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	if !bytes.HasPrefix(rest, []byte("\n")) {
		return fm, string(data), fmt.Errorf("no frontmatter block")
	}
	rest = rest[1:]

	end := findClosingDelim(rest)
	if end < 0 {
		return fm, string(data), fmt.Errorf("unterminated frontmatter block")
	}

	block := rest[:end]
	body := rest[end:]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}

	if err := yaml.Unmarshal(block, &fm); err != nil {
		return Frontmatter{}, string(body), fmt.Errorf("invalid frontmatter yaml: %v", err)
	}
	return fm, string(body), nil
}

// findClosingDelim locates the byte offset of the line beginning the closing
// "---" delimiter within block, or -1.
func findClosingDelim(block []byte) int {
	offset := 0
	for offset <= len(block) {
		lineEnd := bytes.IndexByte(block[offset:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = block[offset:]
			lineEnd = len(block) - offset
		} else {
			line = block[offset : offset+lineEnd]
		}
		if bytes.Equal(bytes.TrimRight(line, "\r"), frontmatterDelim) {
			return offset
		}
		offset += lineEnd + 1
	}
	return -1
}
