// Package transcript reduces the server event stream into an ordered,
// deduplicated message transcript ready for rendering.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

// DefaultStuckTimeout is how long a streaming message may go without any
// event before the watchdog force-completes it.
const DefaultStuckTimeout = 60 * time.Second

// Message is one entry of the transcript. Content is derived state: always
// the concatenation of the text parts in first-insertion order.
type Message struct {
	ID          string
	Role        string
	Content     string
	Parts       []opencode.Part
	IsStreaming bool
	Incomplete  bool
	Err         string
	CreatedAt   time.Time
}

// entry pairs a message with its working part index. The index maps part id
// to position in Parts and exists only while the message is streaming.
type entry struct {
	msg       Message
	partIndex map[string]int
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithLogger sets the reducer logger.
func WithLogger(l *opencode.Logger) Option {
	return func(r *Reducer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStuckTimeout sets the watchdog timeout.
func WithStuckTimeout(d time.Duration) Option {
	return func(r *Reducer) {
		if d > 0 {
			r.stuckTimeout = d
		}
	}
}

// Reducer consumes stream events and owns transcript state. All methods are
// safe for concurrent use; internally a single mutex preserves the
// one-writer-at-a-time invariant.
type Reducer struct {
	logger       *opencode.Logger
	stuckTimeout time.Duration
	now          func() time.Time

	mu        sync.Mutex
	order     []string
	entries   map[string]*entry
	completed map[string]bool
	pending   []opencode.Permission
	lastEvent time.Time
	errSeq    int
	version   uint64
}

// New creates an empty reducer.
func New(opts ...Option) *Reducer {
	r := &Reducer{
		logger:       opencode.NopLogger(),
		stuckTimeout: DefaultStuckTimeout,
		now:          time.Now,
		entries:      make(map[string]*entry),
		completed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastEvent = r.now()
	return r
}

// Version increments on every state change, so callers can cheaply detect
// whether a re-render is needed.
func (r *Reducer) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Messages returns a snapshot of the transcript in order.
func (r *Reducer) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		m := e.msg
		m.Parts = append([]opencode.Part(nil), e.msg.Parts...)
		out = append(out, m)
	}
	return out
}

// Streaming reports whether any assistant message is still streaming.
func (r *Reducer) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if r.entries[id].msg.IsStreaming {
			return true
		}
	}
	return false
}

// Pending returns the pending permission requests in arrival order.
func (r *Reducer) Pending() []opencode.Permission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]opencode.Permission(nil), r.pending...)
}

// ResolvePermission removes a permission request once it has been answered.
func (r *Reducer) ResolvePermission(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.pending {
		if p.ID == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			r.version++
			return
		}
	}
}

// AddUserMessage appends a locally echoed user message.
func (r *Reducer) AddUserMessage(id, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return
	}
	r.entries[id] = &entry{msg: Message{
		ID:        id,
		Role:      "user",
		Content:   content,
		CreatedAt: r.now(),
	}}
	r.order = append(r.order, id)
	r.version++
}

// SeedHistory loads previously persisted messages into an empty transcript,
// all frozen. Events arriving later for these ids are ignored like any
// other completed message.
func (r *Reducer) SeedHistory(history []opencode.MessageWithParts) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mwp := range history {
		id := mwp.Info.ID
		if id == "" {
			continue
		}
		if _, ok := r.entries[id]; ok {
			continue
		}

		created := r.now()
		if mwp.Info.Time.Created > 0 {
			created = time.UnixMilli(int64(mwp.Info.Time.Created))
		}
		parts := append([]opencode.Part(nil), mwp.Parts...)
		e := &entry{msg: Message{
			ID:        id,
			Role:      mwp.Info.Role,
			Content:   deriveContent(parts),
			Parts:     parts,
			CreatedAt: created,
		}}
		r.entries[id] = e
		r.order = append(r.order, id)
		r.completed[id] = true
	}
	r.version++
}

// Apply folds one stream event into the transcript.
func (r *Reducer) Apply(ev *opencode.StreamEvent) {
	if ev == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastEvent = r.now()

	switch ev.Type {
	case opencode.EventMessagePartUpdated:
		r.applyPartUpdated(ev.Message)
	case opencode.EventMessageUpdated:
		r.applyMessageUpdated(ev.Message)
	case opencode.EventPermissionUpdated:
		r.applyPermission(ev.Permission)
	case opencode.EventSessionError, opencode.EventMessageError:
		r.applyError(ev.Error)
	default:
		// Unknown event types still count as liveness but change nothing.
	}
}

func (r *Reducer) applyPartUpdated(props *opencode.MessageEventProperties) {
	if props == nil || props.Part == nil {
		return
	}
	// The server sometimes echoes user events on this channel.
	if props.Info != nil && props.Info.IsUser() {
		return
	}

	part := *props.Part
	msgID := part.MessageID
	if msgID == "" && props.Info != nil {
		msgID = props.Info.ID
	}
	if msgID == "" || r.completed[msgID] {
		return
	}

	e := r.ensureEntry(msgID, props.Info)
	r.upsertPart(e, part)
	e.msg.IsStreaming = true
	e.msg.Content = deriveContent(e.msg.Parts)
	r.version++
}

func (r *Reducer) applyMessageUpdated(props *opencode.MessageEventProperties) {
	if props == nil {
		return
	}
	if props.Info != nil && props.Info.IsUser() {
		return
	}

	msgID := ""
	if props.Info != nil {
		msgID = props.Info.ID
	}
	if msgID == "" && len(props.Parts) > 0 {
		msgID = props.Parts[0].MessageID
	}
	if msgID == "" || r.completed[msgID] {
		return
	}

	e := r.ensureEntry(msgID, props.Info)

	// Snapshots may arrive out of order relative to incremental part
	// updates; upserting by id keeps the transcript free of duplicates.
	for _, part := range props.Parts {
		r.upsertPart(e, part)
	}
	e.msg.Content = deriveContent(e.msg.Parts)

	if props.Info != nil && props.Info.IsComplete() {
		r.freeze(e)
	} else {
		e.msg.IsStreaming = true
	}
	r.version++
}

func (r *Reducer) applyPermission(perm *opencode.Permission) {
	if perm == nil || perm.ID == "" {
		return
	}
	for i, p := range r.pending {
		if p.ID == perm.ID {
			r.pending[i] = *perm
			r.version++
			return
		}
	}
	r.pending = append(r.pending, *perm)
	r.version++
}

// applyError aborts the in-flight turn. The stream connection itself is left
// alone; only the current turn is terminal.
func (r *Reducer) applyError(props *opencode.ErrorEventProperties) {
	text := "unknown error"
	if props != nil && props.Error != nil {
		text = props.Error.Text()
	}

	aborted := false
	for _, id := range r.order {
		e := r.entries[id]
		if !e.msg.IsStreaming {
			continue
		}
		e.msg.Err = text
		r.freeze(e)
		aborted = true
	}

	if !aborted {
		r.errSeq++
		id := fmt.Sprintf("error-%d", r.errSeq)
		if props != nil && props.MessageID != "" {
			id = props.MessageID
		}
		if _, ok := r.entries[id]; !ok {
			r.entries[id] = &entry{msg: Message{
				ID:        id,
				Role:      "assistant",
				Err:       text,
				CreatedAt: r.now(),
			}}
			r.order = append(r.order, id)
		}
	}

	r.logger.Warn("turn aborted by server error", "error", text)
	r.version++
}

// CheckStuck force-completes streaming messages when no event has arrived
// within the stuck timeout. This guards against a silently hung connection
// the transport layer has not flagged yet; the connection itself is left to
// its own recovery. Returns the ids of the messages it completed.
func (r *Reducer) CheckStuck(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastEvent) < r.stuckTimeout {
		return nil
	}

	var stuck []string
	for _, id := range r.order {
		e := r.entries[id]
		if !e.msg.IsStreaming {
			continue
		}
		e.msg.Incomplete = true
		r.freeze(e)
		stuck = append(stuck, id)
	}

	if len(stuck) > 0 {
		r.logger.Warn("stream stuck, forcing message completion", "messages", stuck)
		r.version++
	}
	return stuck
}

// Watch runs the stuck-stream watchdog until the context is cancelled, for
// consumers that do not drive CheckStuck from their own tick.
func (r *Reducer) Watch(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.CheckStuck(now)
		}
	}
}

// ensureEntry returns the entry for msgID, creating it on the first event
// that references a new assistant message.
func (r *Reducer) ensureEntry(msgID string, info *opencode.Message) *entry {
	if e, ok := r.entries[msgID]; ok {
		return e
	}

	created := r.now()
	if info != nil && info.Time.Created > 0 {
		created = time.UnixMilli(int64(info.Time.Created))
	}
	e := &entry{
		msg: Message{
			ID:        msgID,
			Role:      "assistant",
			CreatedAt: created,
		},
		partIndex: make(map[string]int),
	}
	r.entries[msgID] = e
	r.order = append(r.order, msgID)
	return e
}

// upsertPart replaces a part in place by id, or appends it, preserving
// first-insertion order.
func (r *Reducer) upsertPart(e *entry, part opencode.Part) {
	if part.ID == "" {
		return
	}
	if e.partIndex == nil {
		e.partIndex = make(map[string]int)
	}
	if i, ok := e.partIndex[part.ID]; ok {
		e.msg.Parts[i] = part
		return
	}
	e.partIndex[part.ID] = len(e.msg.Parts)
	e.msg.Parts = append(e.msg.Parts, part)
}

// freeze marks a message complete. Late or duplicate events for it are
// ignored from here on, and its working part index is released.
func (r *Reducer) freeze(e *entry) {
	e.msg.IsStreaming = false
	r.completed[e.msg.ID] = true
	e.partIndex = nil
}

// deriveContent joins the text parts in order.
func deriveContent(parts []opencode.Part) string {
	var b strings.Builder
	for i := range parts {
		if parts[i].IsText() {
			b.WriteString(parts[i].TextContent())
		}
	}
	return b.String()
}
