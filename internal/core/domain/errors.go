package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmptyMessage = errors.New("message needs text or an image")
	ErrNotImage     = errors.New("attachment is not an image")
	ErrSelfChat     = errors.New("cannot chat with yourself")

	ErrInvalidTransition = errors.New("invalid call status transition")
	ErrCallBusy          = errors.New("user already has an active call")
	ErrCallEnded         = errors.New("call already ended")
	ErrNoOffer           = errors.New("call has no offer")
	ErrStaleOffer        = errors.New("answer refers to a superseded offer")
	ErrAnswerExists      = errors.New("offer already answered")
	ErrInvalidSDP        = errors.New("invalid session description")
)
