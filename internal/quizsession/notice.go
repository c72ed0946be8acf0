package quizsession

import (
	"time"

	"github.com/google/uuid"
)

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// NoticeCode identifies a notice for the presentation layer.
type NoticeCode string

const (
	NoticeLoadFailed        NoticeCode = "LOAD_FAILED"
	NoticeAlreadySubmitted  NoticeCode = "ALREADY_SUBMITTED"
	NoticeFullScreenFailed  NoticeCode = "FULLSCREEN_FAILED"
	NoticeFullScreenWarning NoticeCode = "FULLSCREEN_WARNING"
	NoticeFullScreenLimit   NoticeCode = "FULLSCREEN_LIMIT"
	NoticeTabSwitchLimit    NoticeCode = "TAB_SWITCH_LIMIT"
	NoticePrintScreen       NoticeCode = "PRINT_SCREEN_BLOCKED"
	NoticeTimeUp            NoticeCode = "TIME_UP"
	NoticeSubmitted         NoticeCode = "SUBMITTED"
	NoticeSubmitFallback    NoticeCode = "SUBMIT_SAVED_LOCALLY"
	NoticeSubmitLost        NoticeCode = "SUBMIT_FAILED"
)

var noticeMessages = map[NoticeCode]string{
	NoticeLoadFailed:        "The quiz could not be loaded. Please reload the page.",
	NoticeAlreadySubmitted:  "You have already completed this quiz.",
	NoticeFullScreenFailed:  "Full-screen mode is required to take this quiz. Please try again.",
	NoticeFullScreenWarning: "You left full-screen mode. Return to full-screen to continue; leaving again submits your quiz.",
	NoticeFullScreenLimit:   "You left full-screen mode again. Your quiz has been submitted.",
	NoticeTabSwitchLimit:    "Tab switch limit reached. Your quiz has been submitted.",
	NoticePrintScreen:       "Screenshots are not allowed during the quiz.",
	NoticeTimeUp:            "Time is up. Your quiz has been submitted.",
	NoticeSubmitted:         "Your quiz has been submitted.",
	NoticeSubmitFallback:    "Submitting to the server failed. Your answers were saved on this device.",
	NoticeSubmitLost:        "Submitting failed and your answers could not be saved on this device.",
}

// Notice is a message the presentation layer shows to the student.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    NoticeCode  `json:"code"`
	Message string      `json:"message"`
}

func newNotice(level NoticeLevel, code NoticeCode) Notice {
	return Notice{Level: level, Code: code, Message: noticeMessages[code]}
}

// ViolationKind names an integrity event.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationFullScreenExit ViolationKind = "full_screen_exit"
	ViolationPrintScreen    ViolationKind = "print_screen"
	ViolationClipboard      ViolationKind = "clipboard"
	ViolationContextMenu    ViolationKind = "context_menu"
)

// Violation is one integrity event observed while a session was running.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	StudentID int           `json:"student_id"`
	QuizID    uuid.UUID     `json:"quiz_id"`
	AttemptID uuid.UUID     `json:"attempt_id"`
	Count     int           `json:"count"`
	Detail    string        `json:"detail,omitempty"`
	At        time.Time     `json:"at"`
}

// Verdict tells a sensor whether to cancel the browser's default action.
type Verdict struct {
	Suppress bool `json:"suppress"`
}

// ClipboardOp is the clipboard action a sensor intercepted.
type ClipboardOp string

const (
	ClipboardCopy  ClipboardOp = "copy"
	ClipboardPaste ClipboardOp = "paste"
	ClipboardCut   ClipboardOp = "cut"
)

// KeyPrintScreen is the key value browsers report for the print screen key.
const KeyPrintScreen = "PrintScreen"
