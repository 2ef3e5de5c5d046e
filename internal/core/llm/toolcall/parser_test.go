package toolcall

import "testing"

func TestExtractThinking(t *testing.T) {
	thinking, cleaned := ExtractThinking("<think>pondering</think>the answer")
	if thinking != "pondering" {
		t.Fatalf("unexpected thinking: %q", thinking)
	}
	if cleaned != "the answer" {
		t.Fatalf("unexpected cleaned text: %q", cleaned)
	}
}

func TestParseFromTextFencedBlock(t *testing.T) {
	text := "Sure, here:\n```json\n{\"tool\": \"read_file\", \"args\": {\"path\": \"a.txt\"}}\n```\n"
	calls := ParseFromText(text)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestParseFromTextBareObject(t *testing.T) {
	text := `prefix {"tool": "shell", "args": {"command": "ls"}} suffix`
	calls := ParseFromText(text)
	if len(calls) != 1 || calls[0].Name != "shell" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestParseFromTextWholeObject(t *testing.T) {
	text := `{"tool": "git_status", "args": {}}`
	calls := ParseFromText(text)
	if len(calls) != 1 || calls[0].Name != "git_status" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestParseFromTextAltToolCallFormat(t *testing.T) {
	text := `{"tool_call": {"name": "list_dir", "arguments": {"path": "."}}}`
	calls := ParseFromText(text)
	if len(calls) != 1 || calls[0].Name != "list_dir" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestParseFromTextFirstStrategyShortCircuits(t *testing.T) {
	// A fenced block exists alongside trailing bare-object-looking text;
	// only the fenced-block strategy's results should be returned.
	text := "```json\n{\"tool\": \"a\", \"args\": {}}\n```\nthen some other text with {\"tool\": \"b\", \"args\": {}} in it"
	calls := ParseFromText(text)
	if len(calls) != 1 || calls[0].Name != "a" {
		t.Fatalf("expected only the fenced match, got %+v", calls)
	}
}

func TestParseFromTextReturnsOnlyFirstCallWithinAStrategy(t *testing.T) {
	// Two legal bare tool-call objects in the same strategy: only the
	// first should be returned, never both.
	text := `first {"tool": "read_file", "args": {"path": "a.txt"}} then {"tool": "write_file", "args": {"path": "b.txt"}}`
	calls := ParseFromText(text)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("expected only the first call to be returned, got %+v", calls)
	}
}

func TestParserShortCircuitsOnKnownToolName(t *testing.T) {
	p := NewParser([]string{"read_file", "write_file"})
	text := `junk {"tool": "unknown_tool", "args": {}} more junk {"tool": "read_file", "args": {"path": "x"}} trailing {"tool": "write_file", "args": {}}`
	calls := p.Parse(text)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("expected single read_file match, got %+v", calls)
	}
}

func TestNativeAccumulatorConcatenatesArgumentFragments(t *testing.T) {
	a := NewNativeAccumulator()
	a.Feed([]DeltaToolCall{{Index: 0, Name: "read_file", Arguments: `{"pa`}})
	a.Feed([]DeltaToolCall{{Index: 0, Arguments: `th": "x.txt"}`}})
	if !a.HasCalls() {
		t.Fatal("expected accumulator to have calls")
	}
	calls := a.Finalize()
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if calls[0].Arguments["path"] != "x.txt" {
		t.Fatalf("unexpected arguments: %+v", calls[0].Arguments)
	}
}

func TestProcessorPlainTextStream(t *testing.T) {
	p := NewProcessor()
	var gotText string
	for _, chunk := range []string{"Hello", ", world", "! This is a longer response."} {
		for _, ev := range p.Feed(chunk) {
			if ev.Kind == StreamText {
				gotText += ev.Data
			}
		}
	}
	_, content, _ := p.Finish()
	if content == "" && gotText == "" {
		t.Fatal("expected some text to have been streamed or finalized")
	}
}

func TestProcessorBuffersToolCallUntilFinish(t *testing.T) {
	p := NewProcessor()
	for _, ev := range p.Feed(`{"tool": "shell"`) {
		if ev.Kind == StreamText {
			t.Fatalf("tool call content should not be streamed as text, got %q", ev.Data)
		}
	}
	for _, ev := range p.Feed(`, "args": {"command": "ls"}}`) {
		if ev.Kind == StreamText {
			t.Fatalf("tool call content should not be streamed as text, got %q", ev.Data)
		}
	}
	_, _, calls := p.Finish()
	if len(calls) != 1 || calls[0].Name != "shell" {
		t.Fatalf("expected shell tool call, got %+v", calls)
	}
}

func TestProcessorThinkingBlock(t *testing.T) {
	p := NewProcessor()
	events := p.Feed("<think>reasoning about it</think>")
	events = append(events, p.Feed("the final answer text goes here")...)
	foundThinking := false
	for _, ev := range events {
		if ev.Kind == StreamThinking {
			foundThinking = true
		}
	}
	_, content, _ := p.Finish()
	if !foundThinking {
		t.Fatal("expected a thinking event")
	}
	if content == "" {
		t.Fatal("expected non-empty content after thinking block")
	}
}
