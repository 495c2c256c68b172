// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between failure scenarios
// without parsing driver errors. The token sentinels separate an
// unusable refresh token from the replay of an already-rotated one,
// which the token service treats as a security event.
package repository

import "errors"

// ErrTokenInvalid is returned when a refresh token is unknown or
// past its expiry. Callers must not surface the distinction between
// this and ErrTokenReused to clients.
var ErrTokenInvalid = errors.New("refresh token invalid")

// ErrUserInactive is returned when an operation requires a live
// account but the user is missing or deactivated. Token rotation
// maps this to an opaque authentication failure.
var ErrUserInactive = errors.New("user inactive or missing")

// ErrTokenReused is returned when a refresh token that was already
// rotated (revoked) is presented again. The presented credential is
// still rejected; the service layer decides whether to revoke the
// user's remaining sessions.
var ErrTokenReused = errors.New("refresh token reused")
