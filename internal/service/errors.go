package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Skotchmaster/compliance_api/pkg/validate"
)

// Error kinds. Errors returned by AuthService wrap one of these, except
// unexpected storage failures, which the HTTP layer reports as 500.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream error")
	ErrNotFound     = errors.New("not found")
)

var (
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)

	ErrInvalidCredentials  = fmt.Errorf("%w: incorrect email or password", ErrUnauthorized)
	ErrInactiveUser        = fmt.Errorf("%w: inactive user", ErrUnauthorized)
	ErrInvalidAccessToken  = fmt.Errorf("%w: invalid access token", ErrUnauthorized)
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	ErrRefreshReused       = fmt.Errorf("%w: refresh token reuse detected", ErrUnauthorized)
	ErrInvalidState        = fmt.Errorf("%w: invalid oauth state", ErrUnauthorized)
	ErrCodeRejected        = fmt.Errorf("%w: authorization code rejected", ErrUnauthorized)
	ErrEmailNotVerified    = fmt.Errorf("%w: google email is not verified", ErrUnauthorized)
	ErrUserGone            = fmt.Errorf("%w: user no longer exists", ErrUnauthorized)

	ErrOAuthDisabled = fmt.Errorf("%w: google sign-in is not configured", ErrUpstream)
)

// ValidationError carries per-field messages keyed by json field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func checkStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve *validate.Error
	if errors.As(err, &ve) {
		return &ValidationError{Fields: ve.Fields()}
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
