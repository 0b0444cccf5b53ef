package tokens

import "errors"

var (
	ErrNoSecret  = errors.New("tokens: signing secret is empty")
	ErrWrongType = errors.New("tokens: unexpected token type")
	ErrNoSubject = errors.New("tokens: token has no subject")
	ErrNoJTI     = errors.New("tokens: refresh token has no jti")
)
