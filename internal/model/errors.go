package model

import "errors"

// Store errors shared by every attempt/catalog backend.
var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptSubmitted = errors.New("attempt is already submitted")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrNoProgress       = errors.New("no saved progress")
)

// ErrAttemptExists is returned by attempt stores when the (quiz, student)
// pair already has an attempt.
var ErrAttemptExists = errors.New("attempt already exists")
