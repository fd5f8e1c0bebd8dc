package service

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUserMismatch = errors.New("payload belongs to another user")
	ErrExamMismatch = errors.New("payload is for another exam")
)

// MessageAlreadySubmitted is returned with success=true for a repeated submission.
const MessageAlreadySubmitted = "already submitted"
