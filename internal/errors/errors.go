package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Request context
	ErrCodeMissingTeamContext     ErrorCode = "MISSING_TEAM_CONTEXT"
	ErrCodeMissingUserContext     ErrorCode = "MISSING_USER_CONTEXT"
	ErrCodeMalformedActionPayload ErrorCode = "MALFORMED_ACTION_PAYLOAD"

	// Configuration
	ErrCodeNotConfigured ErrorCode = "NOT_CONFIGURED"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"

	// Slack delivery
	ErrCodeChannelAccessDenied     ErrorCode = "CHANNEL_ACCESS_DENIED"
	ErrCodeUpstreamDeliveryFailure ErrorCode = "UPSTREAM_DELIVERY_FAILURE"

	// Authentication & rate limiting
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase      ErrorCode = "DATABASE_ERROR"
	ErrCodeUncaughtFatal ErrorCode = "UNCAUGHT_FATAL"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Typed details carried by the domain error variants.

type UserContext struct {
	UserID string `json:"userId,omitempty"`
	TeamID string `json:"teamId,omitempty"`
}

type ActionPayloadDetails struct {
	ActionID string `json:"actionId,omitempty"`
	Value    string `json:"value"`
}

type ChannelDetails struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason"`
}

type UpstreamDetails struct {
	Operation string `json:"operation"`
}

// Common error constructors

func MissingTeamContext(userID string) *AppError {
	return New(ErrCodeMissingTeamContext, "Team ID not found").
		WithDetails(UserContext{UserID: userID})
}

func MissingUserContext(teamID string) *AppError {
	return New(ErrCodeMissingUserContext, "User ID not found").
		WithDetails(UserContext{TeamID: teamID})
}

func MalformedActionPayload(actionID, value string) *AppError {
	return New(ErrCodeMalformedActionPayload, "Malformed action payload").
		WithDetails(ActionPayloadDetails{ActionID: actionID, Value: value})
}

func NotConfigured(userID, teamID string) *AppError {
	return New(ErrCodeNotConfigured, "Payment URL not configured").
		WithDetails(UserContext{UserID: userID, TeamID: teamID})
}

func ChannelAccessDenied(channelID, reason string) *AppError {
	return New(ErrCodeChannelAccessDenied, "Bot cannot post to channel").
		WithDetails(ChannelDetails{ChannelID: channelID, Reason: reason})
}

func UpstreamDeliveryFailure(operation string, cause error) *AppError {
	return Wrap(ErrCodeUpstreamDeliveryFailure, fmt.Sprintf("Upstream call failed: %s", operation), cause).
		WithDetails(UpstreamDetails{Operation: operation})
}

func UncaughtFatal(source string, recovered any) *AppError {
	return New(ErrCodeUncaughtFatal, fmt.Sprintf("Uncaught panic in %s: %v", source, recovered))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
