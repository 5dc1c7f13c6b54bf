package raucwebsvc

import "strings"

// EventKind classifies one line of install output.
type EventKind string

const (
	KindOutput  EventKind = "output" // "[OUT] " stdout of rauc install
	KindStderr  EventKind = "stderr" // "[ERR] "
	KindDone    EventKind = "done"   // "[DONE] "
	KindFailed  EventKind = "failed" // "[ERROR] "
	KindUnknown EventKind = "unknown"
)

var eventPrefixes = []struct {
	prefix string
	kind   EventKind
}{
	{"[OUT]", KindOutput},
	{"[ERROR]", KindFailed}, // before "[ERR]", which it shares a prefix with
	{"[ERR]", KindStderr},
	{"[DONE]", KindDone},
}

// ProgressEvent is a single line emitted by the server while installing.
type ProgressEvent struct {
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}

// ParseProgressLine classifies a line without its trailing newline.
func ParseProgressLine(line string) ProgressEvent {
	for _, p := range eventPrefixes {
		if strings.HasPrefix(line, p.prefix) {
			return ProgressEvent{
				Kind:    p.kind,
				Message: strings.TrimPrefix(strings.TrimPrefix(line, p.prefix), " "),
			}
		}
	}
	return ProgressEvent{Kind: KindUnknown, Message: line}
}

// ProgressScanner reassembles lines from install chunks, which do not
// necessarily end on a line boundary.
type ProgressScanner struct {
	partial strings.Builder
}

// Feed consumes a chunk and returns the events for every line it completed.
func (ps *ProgressScanner) Feed(chunk string) []ProgressEvent {
	var events []ProgressEvent
	for {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			ps.partial.WriteString(chunk)
			return events
		}
		ps.partial.WriteString(chunk[:i])
		chunk = chunk[i+1:]
		if ev, ok := ps.take(); ok {
			events = append(events, ev)
		}
	}
}

// Flush returns the event for an unterminated last line, if any.
func (ps *ProgressScanner) Flush() []ProgressEvent {
	if ev, ok := ps.take(); ok {
		return []ProgressEvent{ev}
	}
	return nil
}

func (ps *ProgressScanner) take() (ProgressEvent, bool) {
	line := strings.TrimRight(ps.partial.String(), "\r")
	ps.partial.Reset()
	if strings.TrimSpace(line) == "" {
		return ProgressEvent{}, false
	}
	return ParseProgressLine(line), true
}
