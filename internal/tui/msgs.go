package tui

import (
	"time"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

// refreshMsg signals that the transcript changed and the viewport should be
// re-rendered.
type refreshMsg struct{}

// connStateMsg carries a connection state change from the subscriber.
type connStateMsg struct {
	state opencode.ConnState
}

// sessionReadyMsg carries the session picked or created at startup.
type sessionReadyMsg struct {
	session *opencode.Session
}

// historyMsg carries the persisted messages of the active session.
type historyMsg struct {
	messages []opencode.MessageWithParts
}

// promptFinishedMsg signals the end of a prompt response stream.
type promptFinishedMsg struct {
	err error
}

// permissionAnsweredMsg signals the server accepted a permission response.
type permissionAnsweredMsg struct {
	id  string
	err error
}

// errMsg carries a fatal startup error.
type errMsg struct {
	err error
}

// tickMsg drives the stuck-stream watchdog.
type tickMsg time.Time
