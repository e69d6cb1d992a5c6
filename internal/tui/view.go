package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
	"github.com/Shahfarzane/opencode-mobile-sub000/transcript"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if bar := m.renderPermissionBar(); bar != "" {
		b.WriteString(bar)
		b.WriteString("\n")
	}
	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := "opencode chat"
	if m.session != nil && m.session.Title != "" {
		title = m.session.Title
	}

	status := m.connState.String()
	styled := statusDisconnectedStyle.Render("● " + status)
	if m.connState == opencode.StateConnected {
		styled = statusConnectedStyle.Render("● " + status)
	}

	left := headerStyle.Render(title)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(styled)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + styled
}

func (m Model) renderPermissionBar() string {
	pending := m.reducer.Pending()
	if len(pending) == 0 {
		return ""
	}
	p := pending[0]
	prompt := fmt.Sprintf("Allow %s %q? (y)es once / (a)lways / (n)o", p.Type, p.Pattern)
	if len(pending) > 1 {
		prompt = fmt.Sprintf("%s  [+%d more]", prompt, len(pending)-1)
	}
	return permissionStyle.Render(prompt)
}

func (m Model) renderFooter() string {
	if m.err != nil {
		return errorStyle.Render("error: " + m.err.Error())
	}
	if m.reducer.Streaming() {
		return helpStyle.Render(m.spinner.View() + " streaming... esc to abort")
	}
	return helpStyle.Render("enter: send • ctrl+c: quit")
}

// renderTranscript renders the reducer's messages for the viewport.
func (m Model) renderTranscript() string {
	messages := m.reducer.Messages()
	if len(messages) == 0 {
		return helpStyle.Render("No messages yet. Say something!")
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(renderMessage(msg))
	}
	return b.String()
}

func renderMessage(msg transcript.Message) string {
	var b strings.Builder

	if msg.Role == "user" {
		b.WriteString(userLabelStyle.Render("You"))
	} else {
		b.WriteString(assistantLabelStyle.Render("Assistant"))
	}
	b.WriteString("\n")

	if msg.Content != "" {
		b.WriteString(msg.Content)
	}

	for _, part := range msg.Parts {
		switch {
		case part.IsTool():
			b.WriteString("\n")
			b.WriteString(toolStyle.Render(renderToolLine(part)))
		case part.IsReasoning():
			if text := part.TextContent(); text != "" {
				b.WriteString("\n")
				b.WriteString(reasoningStyle.Render("thinking: " + text))
			}
		case part.IsFile():
			name := part.URL
			if part.Filename != nil {
				name = *part.Filename
			}
			b.WriteString("\n")
			b.WriteString(toolStyle.Render(fmt.Sprintf("attached %s (%s)", name, part.Mime)))
		}
	}

	if msg.Err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("✗ " + msg.Err))
	}
	if msg.Incomplete {
		b.WriteString("\n")
		b.WriteString(incompleteStyle.Render("⚠ response incomplete"))
	}

	return b.String()
}

func renderToolLine(part opencode.Part) string {
	name := part.Tool
	if name == "" {
		name = part.Type
	}
	status := ""
	if part.State != nil && part.State.Status != "" {
		status = " (" + part.State.Status + ")"
	}
	return fmt.Sprintf("⚙ %s%s", name, status)
}
