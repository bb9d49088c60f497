package tokenstore

import "errors"

var (
	// ErrTokenNotFound indicates no access token is cached for the athlete.
	ErrTokenNotFound = errors.New("token_store.not_found")
	// ErrRefreshTokenNotFound indicates no refresh token is stored for the athlete.
	ErrRefreshTokenNotFound = errors.New("token_store.refresh_not_found")
	// ErrEmptyToken indicates that an empty credential was offered for storage.
	ErrEmptyToken = errors.New("token_store.empty_token")
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("token_store.unsupported_dialect")
)
