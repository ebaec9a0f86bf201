package client

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oauthlink/core"
)

func clientValidationError(field string, message string) error {
	return goerrors.NewValidation("client: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// clientResponseError keeps the server message as the error message so the
// coordinator can surface it verbatim.
func clientResponseError(statusCode int, message string, metadata map[string]any) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(statusCode)
	}
	category := categoryForStatus(statusCode)
	err := goerrors.New(message, category).
		WithCode(statusCode).
		WithTextCode(textCodeForCategory(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func clientDecodeError(source error, operation string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, "client: malformed "+operation+" response").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorUpstream).
		WithMetadata(map[string]any{"operation": operation})
}

func clientInvalidResponseError(operation string, message string) error {
	return goerrors.New("client: invalid "+operation+" response: "+message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorUpstream).
		WithMetadata(map[string]any{"operation": operation})
}

func categoryForStatus(statusCode int) goerrors.Category {
	switch {
	case statusCode == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case statusCode == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case statusCode == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case statusCode == http.StatusConflict:
		return goerrors.CategoryConflict
	case statusCode == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case statusCode >= 400 && statusCode < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func textCodeForCategory(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.ErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return core.ErrorRateLimited
	case goerrors.CategoryBadInput, goerrors.CategoryNotFound, goerrors.CategoryConflict:
		return core.ErrorBadInput
	default:
		return core.ErrorUpstream
	}
}
