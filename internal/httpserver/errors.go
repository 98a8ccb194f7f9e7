package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/middleware/auth"
	"github.com/Skotchmaster/authcore/internal/service"
	"github.com/Skotchmaster/authcore/internal/tokens"
)

const (
	CodeInvalidCredentials     = "invalid_credentials"
	CodeDuplicateIdentifier    = "duplicate_identifier"
	CodeValidationFailed       = "validation_failed"
	CodeInvalidToken           = "invalid_token"
	CodeTokenExpired           = "token_expired"
	CodeTokenRevoked           = "token_revoked"
	CodeUserNotFound           = "user_not_found"
	CodeAuthenticationRequired = "authentication_required"
	CodeForbidden              = "forbidden"
	CodeUnavailable            = "unavailable"
	CodeInternal               = "internal_error"
)

// statusError overrides the status an error would normally map to while
// keeping its code.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(status int, err error) error {
	return &statusError{status: status, err: err}
}

type apiError struct {
	status  int
	code    string
	message string
	// challenge is the WWW-Authenticate value sent with 401 responses.
	challenge string
}

const (
	challengeInvalid = `Bearer error="invalid_token"`
	challengeExpired = `Bearer error="invalid_token", error_description="token expired"`
	challengeNone    = `Bearer`
)

func classify(err error) apiError {
	var out apiError
	switch {
	case errors.Is(err, service.ErrValidation):
		out = apiError{status: http.StatusBadRequest, code: CodeValidationFailed, message: err.Error()}
	case errors.Is(err, service.ErrInvalidCredentials):
		out = apiError{status: http.StatusUnauthorized, code: CodeInvalidCredentials, message: "invalid email or password"}
	case errors.Is(err, service.ErrDuplicateIdentifier):
		out = apiError{status: http.StatusConflict, code: CodeDuplicateIdentifier, message: "email already registered"}
	case errors.Is(err, tokens.ErrTokenExpired):
		out = apiError{status: http.StatusUnauthorized, code: CodeTokenExpired, message: "token expired", challenge: challengeExpired}
	case errors.Is(err, tokens.ErrTokenMalformed), errors.Is(err, tokens.ErrTokenSignatureInvalid):
		out = apiError{status: http.StatusUnauthorized, code: CodeInvalidToken, message: "invalid token", challenge: challengeInvalid}
	case errors.Is(err, service.ErrTokenRevoked):
		out = apiError{status: http.StatusUnauthorized, code: CodeTokenRevoked, message: "token revoked", challenge: challengeInvalid}
	case errors.Is(err, service.ErrUserNotFound):
		out = apiError{status: http.StatusUnauthorized, code: CodeUserNotFound, message: "user not found", challenge: challengeInvalid}
	case errors.Is(err, auth.ErrAuthenticationRequired):
		out = apiError{status: http.StatusUnauthorized, code: CodeAuthenticationRequired, message: "authentication required", challenge: challengeNone}
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, service.ErrForbidden):
		out = apiError{status: http.StatusForbidden, code: CodeForbidden, message: "forbidden"}
	case errors.Is(err, service.ErrUnavailable):
		out = apiError{status: http.StatusServiceUnavailable, code: CodeUnavailable, message: "service unavailable"}
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			out = apiError{status: he.Code, code: codeForStatus(he.Code), message: fmt.Sprint(he.Message)}
		} else {
			out = apiError{status: http.StatusInternalServerError, code: CodeInternal, message: "internal server error"}
		}
	}

	var se *statusError
	if errors.As(err, &se) {
		out.status = se.status
		if se.status != http.StatusUnauthorized {
			out.challenge = ""
		}
	}
	return out
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeAuthenticationRequired
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusInternalServerError:
		return CodeInternal
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}

// ErrorHandler renders every error as an ErrorResponse.
func ErrorHandler(base *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ae := classify(err)

		l := logging.FromContext(c.Request().Context())
		if l == slog.Default() {
			l = base
		}
		if ae.status >= 500 {
			l.Error("request_error", "status", ae.status, "code", ae.code, "error", err)
		}

		if ae.status == http.StatusUnauthorized && ae.challenge != "" {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, ae.challenge)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(ae.status)
		} else {
			werr = c.JSON(ae.status, ErrorResponse{Status: "error", Code: ae.code, Message: ae.message})
		}
		if werr != nil {
			l.Error("error_response_failed", "error", werr)
		}
	}
}
