package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxNameLength bounds node names sent to the worker.
	MaxNameLength = 256
)

var nodeTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateName ensures a node name can travel on a single command line.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("node name cannot contain line breaks: %q", name)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("node name too long: %d bytes (max %d)", len(name), MaxNameLength)
	}
	return nil
}

// ValidateNodeType ensures node types are bare lowercase identifiers.
func ValidateNodeType(nodeType string) error {
	if nodeType == "" {
		return fmt.Errorf("node type cannot be empty")
	}
	if !nodeTypePattern.MatchString(nodeType) {
		return fmt.Errorf("invalid node type: %s (must be lowercase letters, digits, and underscores)", nodeType)
	}
	return nil
}

// Line builds one worker command line. The first invalid argument is
// remembered and reported by Build, so callers can chain freely.
type Line struct {
	parts []string
	err   error
}

// NewLine starts a command line with the given verb.
func NewLine(verb string) *Line {
	return &Line{parts: []string{verb}}
}

// Word appends a bare keyword such as "to" or "under".
func (l *Line) Word(word string) *Line {
	l.parts = append(l.parts, word)
	return l
}

// Name appends a quoted node name.
func (l *Line) Name(name string) *Line {
	if l.err == nil {
		if err := ValidateName(name); err != nil {
			l.err = err
			return l
		}
	}
	l.parts = append(l.parts, strconv.Quote(name))
	return l
}

// Type appends an unquoted node type.
func (l *Line) Type(nodeType string) *Line {
	if l.err == nil {
		if err := ValidateNodeType(nodeType); err != nil {
			l.err = err
			return l
		}
	}
	l.parts = append(l.parts, nodeType)
	return l
}

// Int appends a position.
func (l *Line) Int(n int) *Line {
	if l.err == nil && n < 0 {
		l.err = fmt.Errorf("position cannot be negative: %d", n)
		return l
	}
	l.parts = append(l.parts, strconv.Itoa(n))
	return l
}

// Build returns the finished line, or the first validation error.
func (l *Line) Build() (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return strings.Join(l.parts, " "), nil
}
