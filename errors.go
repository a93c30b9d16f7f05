package sessync

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the closed error taxonomy. The cache/dedup/broadcast core never
// manufactures new error semantics; it normalizes whatever the backend
// produced into one of these.
type Code string

const (
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeSessionNotFound    Code = "session_not_found"
	CodeSessionExpired     Code = "session_expired"
	CodeBadToken           Code = "bad_token"
	CodeNotSupported       Code = "feature_not_supported"
	CodeValidation         Code = "validation_failed"
	CodeRateLimited        Code = "rate_limited"
	CodeUnexpected         Code = "unexpected_failure"
)

// Error is the normalized failure shape returned by every public operation.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// APIError is the structured upstream error shape: backends that expose a
// machine-readable code and HTTP status surface failures through it.
type APIError struct {
	ErrCode string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.ErrCode, e.Status, e.Message)
}

// upstreamCodes maps known machine-readable upstream codes directly, across
// the backends this core has been put under. Lookup is case-insensitive.
var upstreamCodes = map[string]struct {
	code   Code
	status int
}{
	"invalid_credentials":       {CodeInvalidCredentials, 401},
	"invalid_password":          {CodeInvalidCredentials, 401},
	"invalid_email_or_password": {CodeInvalidCredentials, 401},
	"user_not_found":            {CodeInvalidCredentials, 401},
	"session_not_found":         {CodeSessionNotFound, 404},
	"session_expired":           {CodeSessionExpired, 401},
	"refresh_token_expired":     {CodeSessionExpired, 401},
	"token_expired":             {CodeSessionExpired, 401},
	"invalid_token":             {CodeBadToken, 400},
	"bad_jwt":                   {CodeBadToken, 400},
	"feature_not_supported":     {CodeNotSupported, 501},
	"unsupported":               {CodeNotSupported, 501},
	"validation_failed":         {CodeValidation, 400},
	"validation_error":          {CodeValidation, 400},
	"rate_limited":              {CodeRateLimited, 429},
	"over_request_rate_limit":   {CodeRateLimited, 429},
}

// Normalize maps an arbitrary upstream failure to the closed taxonomy.
// Deterministic and pure: structured errors map via direct code lookup
// first, then HTTP-status + message-substring heuristics; generic errors
// map via message substrings; anything unrecognized becomes
// unexpected_failure with status 500. nil passes through.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var ne *Error
	if errors.As(err, &ne) {
		return ne
	}

	var ae *APIError
	if errors.As(err, &ae) {
		if m, ok := upstreamCodes[strings.ToLower(ae.ErrCode)]; ok {
			status := ae.Status
			if status == 0 {
				status = m.status
			}
			return &Error{Code: m.code, Status: status, Message: ae.Message, cause: err}
		}
		if code, ok := byStatusAndMessage(ae.Status, ae.Message); ok {
			return &Error{Code: code, Status: ae.Status, Message: ae.Message, cause: err}
		}
		return &Error{Code: CodeUnexpected, Status: 500, Message: ae.Message, cause: err}
	}

	if code, status, ok := byMessage(err.Error()); ok {
		return &Error{Code: code, Status: status, Message: err.Error(), cause: err}
	}
	return &Error{Code: CodeUnexpected, Status: 500, Message: err.Error(), cause: err}
}

// byStatusAndMessage is the fallback for structured errors whose code is
// unknown: the HTTP status narrows the class, the message picks within it.
func byStatusAndMessage(status int, msg string) (Code, bool) {
	m := strings.ToLower(msg)
	switch status {
	case 400, 422:
		switch {
		case strings.Contains(m, "token"):
			return CodeBadToken, true
		case strings.Contains(m, "valid"):
			return CodeValidation, true
		}
	case 401, 403:
		switch {
		case strings.Contains(m, "expire"):
			return CodeSessionExpired, true
		case strings.Contains(m, "credential"), strings.Contains(m, "password"):
			return CodeInvalidCredentials, true
		}
	case 404:
		if strings.Contains(m, "session") {
			return CodeSessionNotFound, true
		}
	case 429:
		return CodeRateLimited, true
	case 501:
		return CodeNotSupported, true
	}
	return "", false
}

// byMessage classifies unstructured errors by substring. Order matters:
// more specific phrases first.
func byMessage(msg string) (Code, int, bool) {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "invalid credentials"),
		strings.Contains(m, "invalid password"),
		strings.Contains(m, "wrong password"):
		return CodeInvalidCredentials, 401, true
	case strings.Contains(m, "session not found"),
		strings.Contains(m, "no active session"):
		return CodeSessionNotFound, 404, true
	case strings.Contains(m, "session expired"),
		strings.Contains(m, "token expired"),
		strings.Contains(m, "jwt expired"):
		return CodeSessionExpired, 401, true
	case strings.Contains(m, "malformed token"),
		strings.Contains(m, "invalid token"),
		strings.Contains(m, "bad token"):
		return CodeBadToken, 400, true
	case strings.Contains(m, "not supported"),
		strings.Contains(m, "not implemented"):
		return CodeNotSupported, 501, true
	case strings.Contains(m, "rate limit"),
		strings.Contains(m, "too many requests"):
		return CodeRateLimited, 429, true
	case strings.Contains(m, "validation"):
		return CodeValidation, 400, true
	}
	return "", 0, false
}
