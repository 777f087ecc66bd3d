package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Model is the text generation capability every provider implements.
//
// Implementations must return a *ModelError for network, auth, rate-limit
// and provider failures. An empty string with a nil error means the model
// produced no content; it is not a failure.
type Model interface {
	Generate(ctx context.Context, messages []Message, systemPrompt string, maxTokens int) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, messages []Message, systemPrompt string, maxTokens int) (string, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, messages []Message, systemPrompt string, maxTokens int) (string, error) {
	return f(ctx, messages, systemPrompt, maxTokens)
}

var (
	// ErrEmptyUserID is returned when a request carries no user identifier.
	ErrEmptyUserID = errors.New("user id is required")

	// ErrEmptyMessage is returned when a chat request has no content.
	ErrEmptyMessage = errors.New("message is required")

	// ErrModelUnavailable is wrapped by model errors whose cause is unknown.
	ErrModelUnavailable = errors.New("model unavailable")
)

// ErrorKind classifies a model failure.
type ErrorKind string

const (
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindProvider  ErrorKind = "provider"
)

// ModelError is the distinguishable failure returned by Model implementations.
type ModelError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError wraps err, classifying it by HTTP status when one is known
// and by the error text otherwise.
func NewModelError(provider string, statusCode int, err error) *ModelError {
	if err == nil {
		err = ErrModelUnavailable
	}
	kind := KindFromStatus(statusCode)
	if statusCode == 0 {
		kind = categorizeError(err)
	}
	return &ModelError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Err:        err,
	}
}

// KindFromStatus maps an HTTP status code to an ErrorKind.
func KindFromStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrorKindAuth
	case code == http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return ErrorKindTimeout
	default:
		return ErrorKindProvider
	}
}

// IsModelError reports whether err carries a *ModelError of the given kind.
// An empty kind matches any model error.
func IsModelError(err error, kind ErrorKind) bool {
	var me *ModelError
	if !errors.As(err, &me) {
		return false
	}
	return kind == "" || me.Kind == kind
}

// categorizeError maps transport error text to an ErrorKind.
func categorizeError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "deadline"):
		return ErrorKindTimeout
	case strings.Contains(errLower, "rate limit"), strings.Contains(errLower, "too many"):
		return ErrorKindRateLimit
	case strings.Contains(errLower, "unauthorized"), strings.Contains(errLower, "api key"):
		return ErrorKindAuth
	case strings.Contains(errLower, "network"), strings.Contains(errLower, "connection"),
		strings.Contains(errLower, "no such host"), strings.Contains(errLower, "eof"):
		return ErrorKindNetwork
	default:
		return ErrorKindProvider
	}
}
