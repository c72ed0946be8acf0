package quizsession

import (
	"errors"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Intent errors. None of them changes session state.
var (
	ErrAlreadyLoaded     = errors.New("session already loaded")
	ErrNotAwaitingStart  = errors.New("session is not waiting to start")
	ErrNotWarned         = errors.New("session is not showing the full-screen warning")
	ErrNotRunning        = errors.New("session is not running")
	ErrUnknownQuestion   = errors.New("question is not part of this session")
	ErrInvalidChoice     = errors.New("choice does not fit the question")
	ErrQuestionsMismatch = model.ErrQuestionsMismatch
)
