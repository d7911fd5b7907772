// Package query evaluates --query expressions against decoded JSON values.
package query

import (
	"errors"
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// Evaluator applies a query expression to a decoded JSON value
type Evaluator interface {
	Evaluate(value interface{}, expression string) (interface{}, error)
}

// ParseError marks an expression that is incomplete or syntactically invalid.
// These are expected while an expression is still being typed.
type ParseError struct {
	Expression string
	Offset     int
	Underlying error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid query %q at offset %d: %v", e.Expression, e.Offset, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// IsParseError reports whether err stems from an unparseable expression
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// JMESPath evaluates expressions with the JMESPath language used by az --query
type JMESPath struct{}

// NewJMESPath creates a JMESPath evaluator
func NewJMESPath() *JMESPath {
	return &JMESPath{}
}

// Evaluate compiles expression and searches value with it. Compilation
// failures are returned as *ParseError; runtime failures are returned as is.
func (JMESPath) Evaluate(value interface{}, expression string) (interface{}, error) {
	compiled, err := jmespath.Compile(expression)
	if err != nil {
		pe := &ParseError{Expression: expression, Underlying: err}
		var syntax jmespath.SyntaxError
		if errors.As(err, &syntax) {
			pe.Offset = syntax.Offset
		}
		return nil, pe
	}

	result, err := compiled.Search(value)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", expression, err)
	}
	return result, nil
}
