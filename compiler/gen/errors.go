package gen

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is by the typed errors below.
var (
	ErrInvalidSchema    = errors.New("gen: invalid schema")
	ErrMissingConfig    = errors.New("gen: missing required configuration")
	ErrInvalidEdge      = errors.New("gen: invalid edge definition")
	ErrGenerationFailed = errors.New("gen: code generation failed")
)

// describe formats "gen: <kind><where>: <msg>: <cause>", dropping the
// empty parts.
func describe(kind, where, msg string, cause error) string {
	s := "gen: " + kind + where
	if msg != "" {
		s += ": " + msg
	}
	if cause != nil {
		s += ": " + cause.Error()
	}
	return s
}

// SchemaError reports an invalid entity or field declaration.
type SchemaError struct {
	Type    string
	Field   string
	Message string
	Cause   error
}

// NewSchemaError returns a SchemaError on typ, or on its field when field
// is set.
func NewSchemaError(typ, field, message string, cause error) *SchemaError {
	return &SchemaError{Type: typ, Field: field, Message: message, Cause: cause}
}

func (e *SchemaError) Error() string {
	var where string
	switch {
	case e.Type != "" && e.Field != "":
		where = " in " + e.Type + "." + e.Field
	case e.Type != "":
		where = " in " + e.Type
	}
	return describe("schema error", where, e.Message, e.Cause)
}

func (e *SchemaError) Unwrap() error        { return e.Cause }
func (e *SchemaError) Is(target error) bool { return target == ErrInvalidSchema }

// ConfigError reports an invalid generator option.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// NewConfigError returns a ConfigError. value is omitted from the message
// when nil.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{Option: option, Value: value, Message: message}
}

func (e *ConfigError) Error() string {
	where := " for " + e.Option
	if e.Value != nil {
		where += fmt.Sprintf(" (value: %v)", e.Value)
	}
	return describe("config error", where, e.Message, nil)
}

func (e *ConfigError) Is(target error) bool { return target == ErrMissingConfig }

// EdgeError reports an invalid relation between two entities.
type EdgeError struct {
	From    string
	To      string
	Edge    string
	Message string
	Cause   error
}

// NewEdgeError returns an EdgeError on the edge named edgeName of from.
func NewEdgeError(from, to, edgeName, message string, cause error) *EdgeError {
	return &EdgeError{From: from, To: to, Edge: edgeName, Message: message, Cause: cause}
}

func (e *EdgeError) Error() string {
	var where string
	if e.Edge != "" {
		where = " on edge " + e.Edge
	}
	switch {
	case e.From != "" && e.To != "":
		where += fmt.Sprintf(" (%s -> %s)", e.From, e.To)
	case e.From != "":
		where += " from " + e.From
	}
	return describe("edge error", where, e.Message, e.Cause)
}

func (e *EdgeError) Unwrap() error        { return e.Cause }
func (e *EdgeError) Is(target error) bool { return target == ErrInvalidEdge }

// GenerationError reports a failure while rendering or writing File.
// Phase names the template set: registry, entity or where.
type GenerationError struct {
	Phase   string
	File    string
	Message string
	Cause   error
}

// NewGenerationError returns a GenerationError.
func NewGenerationError(phase, file, message string, cause error) *GenerationError {
	return &GenerationError{Phase: phase, File: file, Message: message, Cause: cause}
}

func (e *GenerationError) Error() string {
	var where string
	if e.Phase != "" {
		where = " in phase " + e.Phase
	}
	if e.File != "" {
		where += " (file: " + e.File + ")"
	}
	return describe("generation error", where, e.Message, e.Cause)
}

func (e *GenerationError) Unwrap() error        { return e.Cause }
func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool { return isError[*SchemaError](err) }

// IsEdgeError reports whether err is or wraps an EdgeError.
func IsEdgeError(err error) bool { return isError[*EdgeError](err) }

// IsGenerationError reports whether err is or wraps a GenerationError.
func IsGenerationError(err error) bool { return isError[*GenerationError](err) }

func isError[T error](err error) bool {
	var e T
	return errors.As(err, &e)
}
