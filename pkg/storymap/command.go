package storymap

import (
	"strings"

	"github.com/grovetools/storymap/command"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/channel"
)

// Command is a change as sent to the worker. Persisted becomes true only
// once the worker confirmed it.
type Command struct {
	Change
	Text      string `json:"text"`
	Persisted bool   `json:"persisted"`
}

// RenderCommand renders a change in the worker's command grammar:
//
//	move "<node>" to position <n>
//	rename "<old>" to "<new>"
//	delete "<node>"
//	create <type> "<name>" under <parent-type> "<parent-name>" [at position <n>]
func RenderCommand(c Change) (string, error) {
	var line *command.Line
	switch c.Type {
	case ChangeMove:
		target := -1
		if c.TargetPosition != nil {
			target = *c.TargetPosition
		}
		line = command.NewLine("move").Name(c.NodeName).Word("to").Word("position").Int(target)
	case ChangeRename:
		line = command.NewLine("rename").Name(c.OriginalName).Word("to").Name(c.NewName)
	case ChangeDelete:
		line = command.NewLine("delete").Name(c.NodeName)
	case ChangeCreate:
		line = command.NewLine("create").
			Type(c.NodeType).Name(c.NewNodeName).
			Word("under").
			Type(c.ParentNodeType).Name(c.ParentNodeName)
		if c.NodePosition != nil {
			line = line.Word("at").Word("position").Int(*c.NodePosition)
		}
	default:
		return "", errors.InvalidChange(string(c.Type), "unknown change type")
	}

	text, err := line.Build()
	if err != nil {
		return "", errors.InvalidChange(string(c.Type), err.Error()).WithDetail("id", c.ID)
	}
	return text, nil
}

// ErrorClass groups worker failures for rollback messages and dialogs.
type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassHierarchy  ErrorClass = "hierarchy"
	ClassUnknown    ErrorClass = "unknown"
)

var (
	// Conflicts name a relation between nodes and outrank validation words,
	// so "name must be unique" is structural.
	conflictKeywords   = []string{"already exists", "duplicate", "unique", "not found", "cycle", "has children"}
	validationKeywords = []string{"required", "empty", "invalid", "must", "too long", "blank"}
	hierarchyKeywords  = []string{"parent", "under", "hierarchy", "position"}
)

// ClassifyErrorType maps an explicit error_type plus message to a class.
// The explicit type wins; otherwise message keywords decide.
func ClassifyErrorType(errorType, message string) ErrorClass {
	switch strings.ToLower(strings.TrimSpace(errorType)) {
	case "validation", "validation_error":
		return ClassValidation
	case "hierarchy", "structural", "structure", "hierarchy_error":
		return ClassHierarchy
	}

	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, conflictKeywords):
		return ClassHierarchy
	case containsAny(msg, validationKeywords):
		return ClassValidation
	case containsAny(msg, hierarchyKeywords):
		return ClassHierarchy
	}
	return ClassUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ClassifyError classifies a worker error response.
func ClassifyError(resp channel.Response) ErrorClass {
	return ClassifyErrorType(resp.ErrorType(), resp.ErrorMessage())
}
