package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput        = "OAUTHLINK_BAD_INPUT"
	ErrorStartFailed     = "OAUTHLINK_START_FAILED"
	ErrorPollFailed      = "OAUTHLINK_POLL_FAILED"
	ErrorCompleteFailed  = "OAUTHLINK_COMPLETE_FAILED"
	ErrorFlowSuperseded  = "OAUTHLINK_FLOW_SUPERSEDED"
	ErrorUpstream        = "OAUTHLINK_UPSTREAM"
	ErrorUnauthorized    = "OAUTHLINK_UNAUTHORIZED"
	ErrorRateLimited     = "OAUTHLINK_RATE_LIMITED"
	ErrorInternal        = "OAUTHLINK_INTERNAL_ERROR"
	DefaultErrorMessage  = "Request failed"
	flowSupersededReason = "core: oauth flow superseded by reset or a newer start"
)

// ErrFlowSuperseded is returned by Start when Reset or a newer Start overtook
// the request before it resolved. No state is recorded for the stale call.
var ErrFlowSuperseded = newOAuthLinkError(flowSupersededReason, goerrors.CategoryConflict, ErrorFlowSuperseded)

// ErrorMessage derives the message shown in FlowState.ErrorMessage. Empty
// messages fall back to fallback, then DefaultErrorMessage.
func ErrorMessage(err error, fallback string) string {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = DefaultErrorMessage
	}
	if err == nil {
		return fallback
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		if msg := strings.TrimSpace(richErr.Message); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}

func oauthLinkErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "superseded"):
		return newOAuthLinkError(err.Error(), goerrors.CategoryConflict, ErrorFlowSuperseded)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newOAuthLinkError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newOAuthLinkError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newOAuthLinkError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorFlowSuperseded
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorUpstream
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
