package context

import (
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

func TestSystemLayerRendersSections(t *testing.T) {
	s := NewSystemLayer()
	s.ToolsDescription = "read_file, write_file"
	s.ProjectContext = "a Go module"

	msgs := s.ToMessages()
	if len(msgs) != 1 || msgs[0].Role != harnesstypes.RoleSystem {
		t.Fatalf("expected a single system message, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "read_file") || !strings.Contains(msgs[0].Content, "a Go module") {
		t.Fatalf("expected tool/project sections in system message: %q", msgs[0].Content)
	}
}

func TestPlanLayerShowsCurrentStepAndLookahead(t *testing.T) {
	p := NewPlanLayer()
	p.Steps = []string{"one", "two", "three", "four", "five"}
	p.CurrentStep = 1

	msgs := p.ToMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected one plan message, got %d", len(msgs))
	}
	content := msgs[0].Content
	for _, want := range []string{"two", "three", "four"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected step %q visible within lookahead: %q", want, content)
		}
	}
	if strings.Contains(content, "→ 2. one") || strings.Contains(content, "five") {
		t.Fatalf("step before current or beyond lookahead should not appear: %q", content)
	}
}

func TestPlanLayerEmptyWhenNoSteps(t *testing.T) {
	p := NewPlanLayer()
	if msgs := p.ToMessages(); msgs != nil {
		t.Fatalf("expected no messages for an empty plan, got %+v", msgs)
	}
}

func TestPlanLayerAdvance(t *testing.T) {
	p := NewPlanLayer()
	p.Steps = []string{"a", "b"}
	if !p.Advance() {
		t.Fatal("expected advance to succeed from step 0")
	}
	if p.Advance() {
		t.Fatal("expected advance to fail at the last step")
	}
	if !p.IsComplete() {
		t.Fatal("expected plan to be complete past the last step")
	}
}

func TestHistoryL1CompressesToolPairsByMarker(t *testing.T) {
	h := &HistoryLayer{}
	h.Add(harnesstypes.Assistant(`{"tool":"read_file","args":{}}`))
	h.Add(harnesstypes.User("[Tool Result for read_file]\ncontents here"))
	h.Add(harnesstypes.Assistant(`{"tool":"shell","args":{}}`))
	h.Add(harnesstypes.User("[Tool Result for shell]\n" + harnesstypes.ToolErrorMarker + " exit 1"))
	// Protected tail of 6 messages would swallow everything in a short
	// transcript, so pad it out with plain turns first.
	for i := 0; i < 10; i++ {
		h.Add(harnesstypes.User("filler"))
		h.Add(harnesstypes.Assistant("filler reply"))
	}

	// Calling compress directly forces L1 regardless of size; a budget
	// above the L1 result keeps L2 and the over-budget drop out of it.
	compressed := h.compress(1000)
	var sawOK, sawError bool
	for _, m := range compressed {
		if m.Content == "[Tool: read_file → OK]" {
			sawOK = true
		}
		if m.Content == "[Tool: shell → error]" {
			sawError = true
		}
	}
	if !sawOK {
		t.Errorf("expected a successful tool pair summarized as OK: %+v", compressed)
	}
	if !sawError {
		t.Errorf("expected a failed tool pair summarized as error: %+v", compressed)
	}
}

func TestHistoryL1DoesNotTreatPlainContentAsSuccess(t *testing.T) {
	// Regression: a result mentioning "success" in prose must not be
	// classified OK by string-sniffing; only the registry's own error
	// marker or a policy-violation message flips it to error, and
	// anything else defaults to OK based on pair-shape alone, not
	// keyword search.
	h := &HistoryLayer{}
	h.Add(harnesstypes.Assistant(`{"tool":"shell","args":{}}`))
	h.Add(harnesstypes.User("[Tool Result for shell]\n" + harnesstypes.ToolErrorMarker + " the command did not report success"))
	for i := 0; i < 10; i++ {
		h.Add(harnesstypes.User("filler"))
		h.Add(harnesstypes.Assistant("filler reply"))
	}

	compressed := h.compress(1000)
	for _, m := range compressed {
		if m.Content == "[Tool: shell → OK]" {
			t.Fatalf("expected error status despite the word 'success' appearing in the result body: %+v", compressed)
		}
	}
}

func TestHistoryProtectsTail(t *testing.T) {
	h := &HistoryLayer{}
	for i := 0; i < protectedTail; i++ {
		h.Add(harnesstypes.User("protected"))
	}
	msgs := h.compress(1)
	if len(msgs) != protectedTail {
		t.Fatalf("expected the protected tail untouched when history is at exactly protectedTail, got %d", len(msgs))
	}
}

func TestHistoryL2MergesConsecutiveSummaries(t *testing.T) {
	msgs := []harnesstypes.Msg{
		harnesstypes.User("[Tool: a → OK]"),
		harnesstypes.User("[Tool: b → OK]"),
		harnesstypes.User("[Tool: c → error]"),
		harnesstypes.User("unrelated turn"),
	}
	merged := l2Compress(msgs)
	if len(merged) != 2 {
		t.Fatalf("expected summaries merged into one aggregate plus the unrelated turn, got %+v", merged)
	}
	if merged[0].Content != "[3 tool calls summarized]" {
		t.Fatalf("unexpected aggregate: %q", merged[0].Content)
	}
}

func TestWorkingLayerTruncatesLongResults(t *testing.T) {
	w := &WorkingLayer{}
	w.Add(harnesstypes.User(strings.Repeat("x", maxPerResult+500)))
	got := w.Messages[0].Content
	if !strings.Contains(got, "truncated") {
		t.Fatalf("expected a truncation marker in a long result: len=%d", len(got))
	}
	if len(got) >= maxPerResult+500 {
		t.Fatalf("expected content shorter than the original after truncation, got len=%d", len(got))
	}
}

func TestWorkingLayerPromoteToHistory(t *testing.T) {
	w := &WorkingLayer{}
	h := &HistoryLayer{}
	w.Add(harnesstypes.User("tool output"))
	w.PromoteToHistory(h)

	if len(w.Messages) != 0 {
		t.Fatal("expected working layer cleared after promotion")
	}
	if len(h.Messages) != 1 || h.Messages[0].Content != "tool output" {
		t.Fatalf("expected promoted message to land in history: %+v", h.Messages)
	}
}

func TestAgentContextToMessagesOrder(t *testing.T) {
	c := New()
	c.System.ToolsDescription = "echo"
	c.Plan.Steps = []string{"step one"}
	c.AddUserMessage("do the thing")
	c.AddToolResult("echo", "done")

	msgs := c.ToMessages(0)
	if msgs[0].Role != harnesstypes.RoleSystem {
		t.Fatalf("expected system message first, got %+v", msgs[0])
	}
	foundPlan, foundHistory, foundWorking := false, false, false
	for _, m := range msgs {
		switch m.Content {
		case "do the thing":
			foundHistory = true
		}
		if strings.Contains(m.Content, "Current Plan") {
			foundPlan = true
		}
		if strings.Contains(m.Content, "[Tool Result for echo]") {
			foundWorking = true
		}
	}
	if !foundPlan || !foundHistory || !foundWorking {
		t.Fatalf("expected plan, history, and working content present: %+v", msgs)
	}
}

func TestAgentContextCycleWorkingMovesToHistory(t *testing.T) {
	c := New()
	c.AddToolResult("shell", "output")
	if len(c.Working.Messages) != 1 {
		t.Fatal("expected one working message before cycling")
	}
	c.CycleWorking()
	if len(c.Working.Messages) != 0 {
		t.Fatal("expected working layer empty after cycling")
	}
	if len(c.History.Messages) != 1 {
		t.Fatal("expected the tool result promoted into history")
	}
}

func TestAgentContextBudgetLeavesHistoryCompressed(t *testing.T) {
	c := New()
	for i := 0; i < 50; i++ {
		c.AddUserMessage(strings.Repeat("long turn ", 50))
	}
	msgs := c.ToMessages(50) // tiny budget forces compression
	if estimateMessagesTokens(msgs) == estimateMessagesTokens(c.History.Messages) {
		t.Fatal("expected a tight budget to compress history rather than emit it whole")
	}
}
