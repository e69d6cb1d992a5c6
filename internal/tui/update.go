package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		if model, cmd, handled := m.handleKey(msg); handled {
			return model, cmd
		}

	case tea.FocusMsg:
		m.sub.Resume()

	case tea.BlurMsg:
		m.sub.Pause()

	case sessionReadyMsg:
		m.session = msg.session
		m.sub.SetSession(msg.session.ID)
		return m, m.loadHistory(msg.session.ID)

	case historyMsg:
		m.reducer.SeedHistory(msg.messages)
		m.refreshViewport()

	case refreshMsg:
		m.refreshViewport()

	case connStateMsg:
		m.connState = msg.state

	case tickMsg:
		if stuck := m.reducer.CheckStuck(time.Time(msg)); len(stuck) > 0 {
			m.refreshViewport()
		}
		cmds = append(cmds, m.tick())

	case promptFinishedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		m.refreshViewport()

	case permissionAnsweredMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.reducer.ResolvePermission(msg.id)
		}
		m.refreshViewport()

	case errMsg:
		m.err = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes key presses that are not plain text input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.sub.Close()
		return m, tea.Quit, true

	case "esc":
		if m.session != nil && m.reducer.Streaming() {
			return m, m.abortTurn(), true
		}
		m.sub.Close()
		return m, tea.Quit, true

	case "enter":
		content := strings.TrimSpace(m.textarea.Value())
		if content == "" || m.session == nil || m.reducer.Streaming() {
			return m, nil, true
		}
		m.textarea.Reset()
		return m, m.sendPrompt(content), true

	case "y", "a", "n":
		// Permission answers take priority over typing only when the
		// textarea is empty and a request is pending.
		if m.textarea.Value() != "" {
			return m, nil, false
		}
		pending := m.reducer.Pending()
		if len(pending) == 0 {
			return m, nil, false
		}
		response := opencode.PermissionOnce
		switch msg.String() {
		case "a":
			response = opencode.PermissionAlways
		case "n":
			response = opencode.PermissionReject
		}
		return m, m.respondPermission(pending[0], response), true
	}
	return m, nil, false
}

// sendPrompt locally echoes the user message and streams the response
// through the reducer. Events also arriving on the global feed are folded in
// idempotently, so the two sources cannot duplicate parts.
func (m Model) sendPrompt(content string) tea.Cmd {
	msgID := uuid.NewString()
	m.reducer.AddUserMessage(msgID, content)
	m.refreshViewport()

	client := m.client
	reducer := m.reducer
	sh := m.shared
	sessionID := m.session.ID

	req := &opencode.PromptRequest{
		Parts:     []any{opencode.TextPartInput{Type: "text", Text: content}},
		MessageID: opencode.String(msgID),
	}
	if m.cfg.ProviderID != "" && m.cfg.ModelID != "" {
		req.Model = &opencode.ModelInfo{ProviderID: m.cfg.ProviderID, ModelID: m.cfg.ModelID}
	}

	return func() tea.Msg {
		eventCh, errCh, err := client.Prompt(context.Background(), sessionID, req)
		if err != nil {
			return promptFinishedMsg{err: err}
		}

		for ev := range eventCh {
			reducer.Apply(ev)
			sh.send(refreshMsg{})
		}
		return promptFinishedMsg{err: <-errCh}
	}
}

// abortTurn asks the server to cancel the in-flight assistant turn.
func (m Model) abortTurn() tea.Cmd {
	client := m.client
	sessionID := m.session.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.AbortSession(ctx, sessionID); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// respondPermission answers the oldest pending permission request.
func (m Model) respondPermission(perm opencode.Permission, response opencode.PermissionResponse) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := client.RespondToPermission(ctx, perm.SessionID, perm.ID, response)
		return permissionAnsweredMsg{id: perm.ID, err: err}
	}
}

// layout resizes the panes to the terminal.
func (m *Model) layout() {
	headerHeight := 1
	footerHeight := m.textarea.Height() + 2
	vpHeight := m.height - headerHeight - footerHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(m.width)
	m.refreshViewport()
}

// refreshViewport re-renders the transcript and keeps the view pinned to the
// bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

var _ tea.Model = Model{}
