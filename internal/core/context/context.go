// Package context assembles the message list sent to the LLM from four
// layers — system, plan, history, and working — each with its own
// compression policy, and packs them into a token budget.
//
// This is unrelated to the standard library's context.Context; callers
// typically import it under the alias agentcontext.
package context

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

const charsPerToken = 4

func estimateTokens(s string) int {
	n := len(s) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

func estimateMessagesTokens(msgs []harnesstypes.Msg) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokens(m.Content)
	}
	return total
}

// SystemLayer is the system prompt. It is never compressed.
type SystemLayer struct {
	Role             string
	ToolsDescription string
	ProjectContext   string
	Extra            string
}

// NewSystemLayer returns a SystemLayer with the default role text.
func NewSystemLayer() *SystemLayer {
	return &SystemLayer{Role: "You are an autonomous AI agent with access to tools."}
}

// ToMessages renders the layer as a single system message.
func (s *SystemLayer) ToMessages() []harnesstypes.Msg {
	parts := []string{s.Role}
	if s.ToolsDescription != "" {
		parts = append(parts, "\n## Available Tools\n\n"+s.ToolsDescription)
	}
	if s.ProjectContext != "" {
		parts = append(parts, "\n## Project Context\n\n"+s.ProjectContext)
	}
	if s.Extra != "" {
		parts = append(parts, "\n"+s.Extra)
	}
	return []harnesstypes.Msg{harnesstypes.System(strings.Join(parts, "\n"))}
}

// PlanLayer renders the active plan, showing only the current step and
// a lookahead window.
type PlanLayer struct {
	Steps       []string
	CurrentStep int
	Lookahead   int
}

// NewPlanLayer returns a PlanLayer with the default two-step lookahead.
func NewPlanLayer() *PlanLayer {
	return &PlanLayer{Lookahead: 2}
}

// ToMessages renders the current step and the next Lookahead steps as
// one system message, or nothing if there is no plan.
func (p *PlanLayer) ToMessages() []harnesstypes.Msg {
	if len(p.Steps) == 0 {
		return nil
	}
	end := p.CurrentStep + p.Lookahead + 1
	if end > len(p.Steps) {
		end = len(p.Steps)
	}
	if p.CurrentStep >= end {
		return nil
	}
	visible := p.Steps[p.CurrentStep:end]

	var b strings.Builder
	b.WriteString("## Current Plan (step ")
	b.WriteString(strconv.Itoa(p.CurrentStep + 1))
	b.WriteString("/")
	b.WriteString(strconv.Itoa(len(p.Steps)))
	b.WriteString(")")
	for i, step := range visible {
		marker := " "
		if i == 0 {
			marker = "→"
		}
		b.WriteString("\n  ")
		b.WriteString(marker)
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(p.CurrentStep + i + 1))
		b.WriteString(". ")
		b.WriteString(step)
	}
	return []harnesstypes.Msg{harnesstypes.System(b.String())}
}

// Advance moves to the next step, returning false if already at the
// last step; in that case it moves past the last step, which completes
// the plan.
func (p *PlanLayer) Advance() bool {
	if p.CurrentStep >= len(p.Steps)-1 {
		p.CurrentStep = len(p.Steps)
		return false
	}
	p.CurrentStep++
	return true
}

// IsComplete reports whether every step has been passed.
func (p *PlanLayer) IsComplete() bool {
	return len(p.Steps) == 0 || p.CurrentStep >= len(p.Steps)
}

// protectedTail is the number of most-recent history messages that L1/L2
// compression never touches.
const protectedTail = 6

var toolNamePattern = regexp.MustCompile(`"tool"\s*:\s*"([^"]+)"`)

// HistoryLayer holds compressible past turns.
type HistoryLayer struct {
	Messages []harnesstypes.Msg
}

// Add appends a message to history.
func (h *HistoryLayer) Add(m harnesstypes.Msg) {
	h.Messages = append(h.Messages, m)
}

// ToMessages returns the history as-is if it fits budget (budget <= 0
// means unlimited), or its two-level compression otherwise.
func (h *HistoryLayer) ToMessages(budget int) []harnesstypes.Msg {
	if budget <= 0 || estimateMessagesTokens(h.Messages) <= budget {
		return append([]harnesstypes.Msg(nil), h.Messages...)
	}
	return h.compress(budget)
}

func (h *HistoryLayer) compress(budget int) []harnesstypes.Msg {
	if len(h.Messages) <= protectedTail {
		return append([]harnesstypes.Msg(nil), h.Messages...)
	}

	compressible := h.Messages[:len(h.Messages)-protectedTail]
	protected := h.Messages[len(h.Messages)-protectedTail:]

	compressed := l1Compress(compressible)

	if estimateMessagesTokens(append(append([]harnesstypes.Msg(nil), compressed...), protected...)) > budget {
		compressed = l2Compress(compressed)
	}

	for len(compressed) > 0 && estimateMessagesTokens(append(append([]harnesstypes.Msg(nil), compressed...), protected...)) > budget {
		compressed = compressed[1:]
	}

	out := make([]harnesstypes.Msg, 0, len(compressed)+len(protected))
	out = append(out, compressed...)
	out = append(out, protected...)
	return out
}

// l1Compress replaces adjacent (assistant, user-tool-result) pairs with
// a single one-line summary: "[Tool: <name> → OK|error]". Status is
// read from the registry's error marker or a policy-violation message,
// not inferred from the word "success" appearing anywhere in the text.
func l1Compress(msgs []harnesstypes.Msg) []harnesstypes.Msg {
	var out []harnesstypes.Msg
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == harnesstypes.RoleAssistant && i+1 < len(msgs) && msgs[i+1].Role == harnesstypes.RoleUser {
			next := msgs[i+1].Content
			if strings.HasPrefix(next, harnesstypes.ToolResultPrefix) {
				name := extractToolName(msg.Content)
				status := "OK"
				if strings.Contains(next, harnesstypes.ToolErrorMarker) || strings.Contains(next, harnesstypes.PolicyViolationMarker) {
					status = "error"
				}
				out = append(out, harnesstypes.User("[Tool: "+name+" → "+status+"]"))
				i += 2
				continue
			}
		}
		out = append(out, msg)
		i++
	}
	return out
}

// l2Compress merges consecutive L1 summaries into a single aggregated
// count message.
func l2Compress(msgs []harnesstypes.Msg) []harnesstypes.Msg {
	var out []harnesstypes.Msg
	var batch int

	flush := func() {
		if batch > 0 {
			out = append(out, harnesstypes.User("["+strconv.Itoa(batch)+" tool calls summarized]"))
			batch = 0
		}
	}

	for _, m := range msgs {
		if strings.HasPrefix(m.Content, "[Tool:") {
			batch++
			continue
		}
		flush()
		out = append(out, m)
	}
	flush()
	return out
}

func extractToolName(content string) string {
	m := toolNamePattern.FindStringSubmatch(content)
	if m == nil {
		return "unknown"
	}
	return m[1]
}

// maxPerResult is the maximum number of characters a single working
// message keeps before being truncated head-and-tail.
const maxPerResult = 3000

// WorkingLayer holds recent tool results: protected from history
// compression but truncated per-message.
type WorkingLayer struct {
	Messages []harnesstypes.Msg
}

// Add appends a message, truncating its content if it exceeds
// maxPerResult.
func (w *WorkingLayer) Add(m harnesstypes.Msg) {
	if len(m.Content) > maxPerResult {
		half := maxPerResult / 2
		m.Content = m.Content[:half] + "\n\n[..." + strconv.Itoa(len(m.Content)-maxPerResult) + " chars truncated...]\n\n" + m.Content[len(m.Content)-half:]
	}
	w.Messages = append(w.Messages, m)
}

// ToMessages returns the working layer's messages as-is.
func (w *WorkingLayer) ToMessages() []harnesstypes.Msg {
	return append([]harnesstypes.Msg(nil), w.Messages...)
}

// PromoteToHistory moves every working message into history and clears
// the working layer.
func (w *WorkingLayer) PromoteToHistory(h *HistoryLayer) {
	h.Messages = append(h.Messages, w.Messages...)
	w.Messages = nil
}

// AgentContext assembles System, Plan, History, and Working layers into
// a budgeted message list for the LLM.
type AgentContext struct {
	System  *SystemLayer
	Plan    *PlanLayer
	History *HistoryLayer
	Working *WorkingLayer
}

// New returns an empty AgentContext with default layer settings.
func New() *AgentContext {
	return &AgentContext{
		System:  NewSystemLayer(),
		Plan:    NewPlanLayer(),
		History: &HistoryLayer{},
		Working: &WorkingLayer{},
	}
}

// ToMessages assembles every layer into an ordered message list whose
// estimated size fits budget. budget <= 0 means unlimited: system, plan,
// and working are always included in full; history absorbs whatever
// budget remains and is compressed to fit.
func (c *AgentContext) ToMessages(budget int) []harnesstypes.Msg {
	systemMsgs := c.System.ToMessages()
	planMsgs := c.Plan.ToMessages()
	workingMsgs := c.Working.ToMessages()

	if budget <= 0 {
		out := make([]harnesstypes.Msg, 0, len(systemMsgs)+len(planMsgs)+len(c.History.Messages)+len(workingMsgs))
		out = append(out, systemMsgs...)
		out = append(out, planMsgs...)
		out = append(out, c.History.Messages...)
		out = append(out, workingMsgs...)
		return out
	}

	fixed := estimateMessagesTokens(systemMsgs) + estimateMessagesTokens(planMsgs) + estimateMessagesTokens(workingMsgs)
	historyBudget := budget - fixed
	if historyBudget < 0 {
		historyBudget = 0
	}
	historyMsgs := c.History.ToMessages(historyBudget)

	out := make([]harnesstypes.Msg, 0, len(systemMsgs)+len(planMsgs)+len(historyMsgs)+len(workingMsgs))
	out = append(out, systemMsgs...)
	out = append(out, planMsgs...)
	out = append(out, historyMsgs...)
	out = append(out, workingMsgs...)
	return out
}

// AddUserMessage appends a user turn to history.
func (c *AgentContext) AddUserMessage(content string) {
	c.History.Add(harnesstypes.User(content))
}

// AddAssistantMessage appends an assistant turn to history.
func (c *AgentContext) AddAssistantMessage(content string) {
	c.History.Add(harnesstypes.Assistant(content))
}

// AddToolResult appends a tool result to the working layer, tagged with
// the literal "[Tool Result" prefix the L1 compressor recognizes.
func (c *AgentContext) AddToolResult(toolName, resultText string) {
	c.Working.Add(harnesstypes.User("[Tool Result for " + toolName + "]\n" + resultText))
}

// CycleWorking promotes every working message into history, run at the
// end of a successful tool-execution round so the next LLM turn starts
// with an empty working layer.
func (c *AgentContext) CycleWorking() {
	c.Working.PromoteToHistory(c.History)
}
