// Package tui is the terminal front end: it renders the transcript owned by
// the reducer and drives the stream subscriber's lifecycle from terminal
// focus changes.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Shahfarzane/opencode-mobile-sub000/internal/config"
	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
	"github.com/Shahfarzane/opencode-mobile-sub000/transcript"
)

// shared holds the program reference needed by goroutines that outlive any
// single model value.
type shared struct {
	mu      sync.Mutex
	program *tea.Program
}

func (s *shared) setProgram(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.program = p
}

func (s *shared) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	cfg     *config.Config
	client  *opencode.Client
	sub     *opencode.Subscriber
	reducer *transcript.Reducer
	shared  *shared
	logger  *opencode.Logger

	session   *opencode.Session
	connState opencode.ConnState

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool
	err    error
}

func newModel(cfg *config.Config, client *opencode.Client, sub *opencode.Subscriber, reducer *transcript.Reducer, sh *shared, logger *opencode.Logger) Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = "┃ "
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		cfg:       cfg,
		client:    client,
		sub:       sub,
		reducer:   reducer,
		shared:    sh,
		logger:    logger,
		connState: opencode.StateDisconnected,
		textarea:  ta,
		spinner:   sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.startSession(),
		m.tick(),
	)
}

// startSession resumes the most recent session or creates a fresh one.
func (m Model) startSession() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		sessions, err := m.client.ListSessions(ctx)
		if err != nil {
			return errMsg{fmt.Errorf("list sessions: %w", err)}
		}

		var latest *opencode.Session
		for i := range sessions {
			s := &sessions[i]
			if latest == nil || s.Time.Updated > latest.Time.Updated {
				latest = s
			}
		}
		if latest != nil {
			return sessionReadyMsg{session: latest}
		}

		session, err := m.client.CreateSession(ctx, nil)
		if err != nil {
			return errMsg{fmt.Errorf("create session: %w", err)}
		}
		return sessionReadyMsg{session: session}
	}
}

// loadHistory fetches the persisted messages of the active session.
func (m Model) loadHistory(sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		messages, err := m.client.ListMessages(ctx, sessionID)
		if err != nil {
			return errMsg{fmt.Errorf("load history: %w", err)}
		}
		return historyMsg{messages: messages}
	}
}

// tick drives the stuck-stream watchdog once a second.
func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run wires the client, reducer, and subscriber together and runs the UI
// until quit.
func Run(cfg *config.Config, logger *opencode.Logger) error {
	opts := []opencode.ClientOption{
		opencode.WithToken(cfg.AuthToken),
		opencode.WithLogger(logger),
	}
	if cfg.Directory != "" {
		opts = append(opts, opencode.WithDirectory(cfg.Directory))
	}
	client := opencode.NewClient(cfg.ServerURL, opts...)

	reducer := transcript.New(
		transcript.WithLogger(logger),
		transcript.WithStuckTimeout(cfg.StuckTimeout),
	)

	sh := &shared{}
	sub := client.NewSubscriber(
		func(ev *opencode.StreamEvent) {
			reducer.Apply(ev)
			sh.send(refreshMsg{})
		},
		opencode.WithStateFunc(func(st opencode.ConnState) {
			sh.send(connStateMsg{state: st})
		}),
	)
	defer sub.Close()

	m := newModel(cfg, client, sub, reducer, sh, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
	sh.setProgram(p)

	_, err := p.Run()
	return err
}
