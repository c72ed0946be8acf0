package websocket

import (
	"encoding/json"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart             Action = "start"
	ActionReEnterFullScreen Action = "reenter_fullscreen"
	ActionFullScreenEntered Action = "fullscreen_entered"
	ActionFullScreenFailed  Action = "fullscreen_failed"
	ActionFullScreenExited  Action = "fullscreen_exited"
	ActionVisibilityHidden  Action = "visibility_hidden"
	ActionKeyDown           Action = "keydown"
	ActionClipboard         Action = "clipboard"
	ActionContextMenu       Action = "context_menu"
	ActionSelectAnswer      Action = "select_answer"
	ActionNext              Action = "next"
	ActionPrevious          Action = "previous"
	ActionSubmit            Action = "submit"
	ActionPing              Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
// Ref echoes back on the verdict of a sensor event.
type RequestEnvelope struct {
	Action  Action          `json:"action" validate:"required"`
	Ref     string          `json:"ref,omitempty" validate:"omitempty,max=64"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SelectAnswerRequest picks an option or sets the text of a question.
type SelectAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required,uuid"`
	Option     *int   `json:"option" validate:"omitempty,min=0"`
	Text       string `json:"text" validate:"max=2000"`
}

// KeyDownRequest reports a key press seen by the keyboard sensor.
type KeyDownRequest struct {
	Key string `json:"key" validate:"required,max=64"`
}

// ClipboardRequest reports an intercepted clipboard action.
type ClipboardRequest struct {
	Op string `json:"op" validate:"required,oneof=copy paste cut"`
}

// FullScreenFailedRequest reports a rejected full-screen request.
type FullScreenFailedRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot          Event = "snapshot"
	EventNotice            Event = "notice"
	EventVerdict           Event = "verdict"
	EventRequestFullScreen Event = "request_fullscreen"
	EventExitFullScreen    Event = "exit_fullscreen"
	EventAttachSensors     Event = "attach_sensors"
	EventDetachSensors     Event = "detach_sensors"
	EventComplete          Event = "complete"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// Message is the envelope of every server event.
type Message struct {
	Event Event       `json:"event"`
	Ref   string      `json:"ref,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// CompleteData tells the client the session is over and where to go next.
type CompleteData struct {
	AttemptID string `json:"attempt_id"`
	Score     int    `json:"score"`
	Redirect  string `json:"redirect"`
}
