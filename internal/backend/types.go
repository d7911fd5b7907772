package backend

import (
	"context"
	"errors"
)

// ErrUnavailable is returned once the tool behind a service could not be found
var ErrUnavailable = errors.New("backend unavailable")

// InstallURL is offered to the user when the az tool is missing
const InstallURL = "https://aka.ms/GetTheAzureCLI"

// CompletionKind describes what a completion candidate inserts
type CompletionKind string

const (
	KindGroup          CompletionKind = "group"
	KindCommand        CompletionKind = "command"
	KindParameterName  CompletionKind = "parameter_name"
	KindParameterValue CompletionKind = "parameter_value"
	KindSnippet        CompletionKind = "snippet"
)

// Completion is one candidate returned by a knowledge backend
type Completion struct {
	Name          string         `json:"name"`
	Kind          CompletionKind `json:"kind"`
	Detail        string         `json:"detail,omitempty"`
	Documentation string         `json:"documentation,omitempty"`
	Snippet       string         `json:"snippet,omitempty"`
	SortText      string         `json:"sortText,omitempty"`
}

// CompletionQuery describes the cursor position to complete.
// An empty query (no subcommand) asks for nothing in particular.
type CompletionQuery struct {
	Subcommand string             `json:"subcommand,omitempty"`
	Argument   string             `json:"argument,omitempty"`
	Arguments  map[string]*string `json:"arguments,omitempty"`
	// Prefix is the partial word at the cursor, used only for ranking
	Prefix string `json:"prefix,omitempty"`
}

// HoverQuery names the subcommand path and optionally one parameter of it
type HoverQuery struct {
	Subcommand string `json:"subcommand"`
	Argument   string `json:"argument,omitempty"`
}

// Hover is documentation text for a hover query
type Hover struct {
	Paragraphs []string `json:"paragraphs"`
}

// Status is the one-line tool status shown in a status indicator
type Status struct {
	Message string `json:"message"`
}

// Service answers completion, hover and status questions about the az tool
type Service interface {
	Completions(ctx context.Context, q CompletionQuery) ([]Completion, error)
	Hover(ctx context.Context, q HoverQuery) (*Hover, error)
	Status(ctx context.Context) (Status, error)
}

// NotFoundHandler is called when the tool backing a service is not installed
type NotFoundHandler func()
