package opencode

import (
	"bytes"
	"encoding/json"
)

// doneSentinel is the payload the server sends to end a stream gracefully.
const doneSentinel = "[DONE]"

// dataPrefix marks the payload lines of the event feed.
var dataPrefix = []byte("data:")

// FrameParser incrementally turns a growing SSE response body into discrete
// events. Feed it each chunk as it arrives; bytes belonging to a line whose
// newline has not arrived yet are held back and consumed on a later call, so
// no byte is ever processed twice.
type FrameParser struct {
	pending []byte
	done    bool
}

// NewFrameParser returns a parser ready to consume a fresh response body.
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Done reports whether the [DONE] sentinel has been seen. Once done, Feed
// emits nothing more regardless of what else arrives.
func (p *FrameParser) Done() bool {
	return p.done
}

// Feed consumes the next chunk of the response body and returns the events
// completed by it, in wire order.
func (p *FrameParser) Feed(chunk []byte) []Event {
	if p.done {
		return nil
	}

	p.pending = append(p.pending, chunk...)

	var events []Event
	for {
		nl := bytes.IndexByte(p.pending, '\n')
		if nl < 0 {
			break
		}
		line := p.pending[:nl]
		p.pending = p.pending[nl+1:]

		ev, ok := p.parseLine(line)
		if !ok {
			if p.done {
				p.pending = nil
				break
			}
			continue
		}
		events = append(events, ev)
	}
	return events
}

// parseLine extracts the event from one complete line. The bool result is
// false for lines that yield no event: non-data lines, the [DONE] sentinel,
// and frames with malformed JSON. Callers discard those on purpose; one bad
// frame must not take the stream down.
func (p *FrameParser) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return Event{}, false
	}
	if string(payload) == doneSentinel {
		p.done = true
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, false
	}
	if ev.Type == "" {
		// Bare objects without an envelope are normalized into one.
		ev.Type = EventUnknown
		if len(ev.Properties) == 0 {
			ev.Properties = append(json.RawMessage(nil), payload...)
		}
	}
	return ev, true
}
