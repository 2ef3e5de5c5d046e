package toolcall

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// NativeAccumulator assembles native function-calling tool_calls from
// streaming deltas. OpenAI-compatible providers send each call's name
// once and its arguments in fragments that must be concatenated
// in index order before they form valid JSON.
type NativeAccumulator struct {
	calls map[int]*accumulatedCall
}

type accumulatedCall struct {
	name string
	args strings.Builder
}

// NewNativeAccumulator returns an empty accumulator.
func NewNativeAccumulator() *NativeAccumulator {
	return &NativeAccumulator{calls: make(map[int]*accumulatedCall)}
}

// DeltaToolCall mirrors one entry of an OpenAI-style streaming delta's
// tool_calls array.
type DeltaToolCall struct {
	Index    int
	Name     string
	Arguments string
}

// Feed ingests the tool_calls entries of one streaming delta.
func (a *NativeAccumulator) Feed(deltas []DeltaToolCall) {
	for _, d := range deltas {
		entry, ok := a.calls[d.Index]
		if !ok {
			entry = &accumulatedCall{}
			a.calls[d.Index] = entry
		}
		if d.Name != "" {
			entry.name = d.Name
		}
		if d.Arguments != "" {
			entry.args.WriteString(d.Arguments)
		}
	}
}

// HasCalls reports whether any fragments have been accumulated.
func (a *NativeAccumulator) HasCalls() bool { return len(a.calls) > 0 }

// Finalize parses the accumulated fragments into complete ToolCalls,
// in ascending index order.
func (a *NativeAccumulator) Finalize() []harnesstypes.ToolCall {
	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var out []harnesstypes.ToolCall
	for _, idx := range indices {
		entry := a.calls[idx]
		if entry.name == "" {
			continue
		}
		rawArgs := entry.args.String()
		var args map[string]any
		if rawArgs != "" {
			_ = json.Unmarshal([]byte(rawArgs), &args)
		}
		if args == nil {
			args = map[string]any{}
		}
		raw, _ := json.Marshal(map[string]any{
			"function": map[string]any{"name": entry.name, "arguments": rawArgs},
		})
		out = append(out, harnesstypes.ToolCall{Name: entry.name, Arguments: args, Raw: string(raw)})
	}
	return out
}

// StreamEventKind classifies one event emitted by Processor.Feed.
type StreamEventKind string

const (
	StreamThinking StreamEventKind = "thinking"
	StreamText     StreamEventKind = "text"
)

// StreamEvent is one unit of streamed output ready for display.
type StreamEvent struct {
	Kind StreamEventKind
	Data string
}

type streamState int

const (
	stateInit streamState = iota
	stateThinking
	stateDetecting
	stateText
	stateTool
)

var fencePrefixes = []string{"```json", "```\n{", "```{"}

// Processor incrementally classifies a streaming LLM response as it
// arrives: a leading <think> block, then either free text (displayed
// as it streams) or a buffered tool call (withheld until complete so a
// partial JSON object is never shown to the user).
type Processor struct {
	buffer           strings.Builder
	thinking         string
	contentStart     int
	displayedUpTo    int
	state            streamState
	thinkingYieldedAt int
}

// NewProcessor returns a fresh Processor in its initial state.
func NewProcessor() *Processor { return &Processor{} }

const thinkingYieldInterval = 200

// Feed ingests one chunk of streamed text and returns any events ready
// to display. Call Feed repeatedly as chunks arrive, then Finish once
// the stream ends.
func (p *Processor) Feed(chunk string) []StreamEvent {
	p.buffer.WriteString(chunk)
	buf := p.buffer.String()

	var events []StreamEvent
	changed := true
	for changed {
		changed = false

		switch p.state {
		case stateInit:
			stripped := strings.TrimLeft(buf, " \t\r\n")
			switch {
			case strings.HasPrefix(stripped, "<think>"):
				p.state = stateThinking
				changed = true
			case len(stripped) >= 7 || (stripped != "" && !strings.HasPrefix(stripped, "<")):
				p.contentStart = len(buf) - len(stripped)
				p.displayedUpTo = p.contentStart
				p.state = stateDetecting
				changed = true
			}

		case stateThinking:
			if endIdx := strings.Index(buf, "</think>"); endIdx >= 0 {
				thinkStart := strings.Index(buf, "<think>") + len("<think>")
				p.thinking = strings.TrimSpace(buf[thinkStart:endIdx])
				p.contentStart = endIdx + len("</think>")
				p.displayedUpTo = p.contentStart
				events = append(events, StreamEvent{Kind: StreamThinking, Data: p.thinking})
				p.state = stateDetecting
				changed = true
			} else if thinkStart := strings.Index(buf, "<think>"); thinkStart >= 0 {
				partialLen := len(buf) - thinkStart - len("<think>")
				if partialLen-p.thinkingYieldedAt >= thinkingYieldInterval {
					p.thinkingYieldedAt = partialLen
					snippet := strings.TrimSpace(buf[thinkStart+len("<think>"):])
					lines := strings.Split(snippet, "\n")
					last := lines[len(lines)-1]
					if len(last) > 80 {
						last = last[:80]
					}
					events = append(events, StreamEvent{Kind: StreamThinking, Data: last})
				}
			}

		case stateDetecting:
			content := strings.TrimLeft(buf[p.contentStart:], " \t\r\n")
			if content == "" {
				changed = false
				break
			}
			switch {
			case strings.HasPrefix(content, "{"):
				p.state = stateTool
			case hasAnyPrefix(content, fencePrefixes):
				p.state = stateTool
			case len(content) > 8:
				p.state = stateText
				changed = true
			}

		case stateText:
			if newText := buf[p.displayedUpTo:]; newText != "" {
				p.displayedUpTo = len(buf)
				events = append(events, StreamEvent{Kind: StreamText, Data: newText})
			}

		case stateTool:
			// buffered silently until Finish
		}
	}
	return events
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Finish finalizes the stream, returning any extracted thinking text,
// the cleaned display content, and any tool calls detected in it.
func (p *Processor) Finish() (thinking, content string, calls []harnesstypes.ToolCall) {
	buf := p.buffer.String()
	content = strings.TrimSpace(buf[min(p.contentStart, len(buf)):])

	if p.state == stateThinking {
		if thinkStart := strings.Index(buf, "<think>"); thinkStart >= 0 {
			p.thinking = strings.TrimSpace(buf[thinkStart+len("<think>"):])
		}
		content = ""
	}

	if p.state == stateTool {
		calls = ParseFromText(content)
	}
	if len(calls) == 0 && content != "" {
		calls = ParseFromText(content)
	}
	return p.thinking, content, calls
}

// UndisplayedText returns whatever has been buffered but not yet
// yielded as a text event.
func (p *Processor) UndisplayedText() string {
	buf := p.buffer.String()
	if p.displayedUpTo > len(buf) {
		return ""
	}
	return strings.TrimSpace(buf[p.displayedUpTo:])
}

