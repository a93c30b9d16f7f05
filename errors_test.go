package sessync

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeTable(t *testing.T) {
	cases := []struct {
		name       string
		in         error
		wantCode   Code
		wantStatus int
	}{
		{
			name:       "structured direct code",
			in:         &APIError{ErrCode: "invalid_credentials", Status: 401, Message: "nope"},
			wantCode:   CodeInvalidCredentials,
			wantStatus: 401,
		},
		{
			name:       "structured code is case-insensitive",
			in:         &APIError{ErrCode: "SESSION_EXPIRED", Status: 401, Message: "expired"},
			wantCode:   CodeSessionExpired,
			wantStatus: 401,
		},
		{
			name:       "structured code with missing status gets table default",
			in:         &APIError{ErrCode: "rate_limited", Message: "slow down"},
			wantCode:   CodeRateLimited,
			wantStatus: 429,
		},
		{
			name:       "structured unknown code falls back to status heuristics",
			in:         &APIError{ErrCode: "weird_upstream_thing", Status: 401, Message: "token expired"},
			wantCode:   CodeSessionExpired,
			wantStatus: 401,
		},
		{
			name:       "structured unknown code and status maps to unexpected",
			in:         &APIError{ErrCode: "weird", Status: 418, Message: "teapot"},
			wantCode:   CodeUnexpected,
			wantStatus: 500,
		},
		{
			name:       "structured 404 session heuristic",
			in:         &APIError{ErrCode: "nope", Status: 404, Message: "session missing"},
			wantCode:   CodeSessionNotFound,
			wantStatus: 404,
		},
		{
			name:       "structured 422 validation heuristic",
			in:         &APIError{ErrCode: "nope", Status: 422, Message: "email is not valid"},
			wantCode:   CodeValidation,
			wantStatus: 422,
		},
		{
			name:       "generic invalid credentials",
			in:         errors.New("login failed: invalid credentials"),
			wantCode:   CodeInvalidCredentials,
			wantStatus: 401,
		},
		{
			name:       "generic jwt expired",
			in:         errors.New("jwt expired at 2026-01-01"),
			wantCode:   CodeSessionExpired,
			wantStatus: 401,
		},
		{
			name:       "generic malformed token",
			in:         errors.New("malformed token header"),
			wantCode:   CodeBadToken,
			wantStatus: 400,
		},
		{
			name:       "generic rate limit",
			in:         errors.New("too many requests, try later"),
			wantCode:   CodeRateLimited,
			wantStatus: 429,
		},
		{
			name:       "generic not implemented",
			in:         errors.New("mfa is not implemented for this provider"),
			wantCode:   CodeNotSupported,
			wantStatus: 501,
		},
		{
			name:       "unrecognized maps to unexpected 500",
			in:         errors.New("connection reset by peer"),
			wantCode:   CodeUnexpected,
			wantStatus: 500,
		},
		{
			name:       "wrapped structured error still found",
			in:         fmt.Errorf("request failed: %w", &APIError{ErrCode: "invalid_token", Status: 400, Message: "bad"}),
			wantCode:   CodeBadToken,
			wantStatus: 400,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if got == nil {
				t.Fatal("Normalize returned nil for non-nil error")
			}
			if got.Code != tc.wantCode {
				t.Fatalf("code = %s, want %s", got.Code, tc.wantCode)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("status = %d, want %d", got.Status, tc.wantStatus)
			}
			if !errors.Is(got, tc.in) && got != tc.in {
				// normalized errors keep their cause chain
				if got.Unwrap() == nil {
					t.Fatal("normalized error lost its cause")
				}
			}
		})
	}
}

func TestNormalizeNilAndPassthrough(t *testing.T) {
	if Normalize(nil) != nil {
		t.Fatal("Normalize(nil) should be nil")
	}

	orig := &Error{Code: CodeValidation, Status: 400, Message: "already normalized"}
	if got := Normalize(orig); got != orig {
		t.Fatal("already-normalized errors must pass through unchanged")
	}
	if got := Normalize(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Fatal("wrapped normalized errors must unwrap to the original")
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	in := &APIError{ErrCode: "user_not_found", Status: 401, Message: "no user"}
	a, b := Normalize(in), Normalize(in)
	if a.Code != b.Code || a.Status != b.Status || a.Message != b.Message {
		t.Fatal("Normalize must be a pure mapping")
	}
}
