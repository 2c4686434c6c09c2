package claude

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestTextContent_JoinsTextBlocks(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"date":"2024-01-05"`},
			{Type: "text", Text: `}`},
		},
	}

	got := textContent(msg)
	want := `{"date":"2024-01-05"}`
	if got != want {
		t.Errorf("textContent = %q, want %q", got, want)
	}
}

func TestTextContent_IgnoresNonTextBlocks(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "tool_use", Text: "should be ignored"},
			{Type: "text", Text: "  null  "},
		},
	}

	if got := textContent(msg); got != "null" {
		t.Errorf("textContent = %q, want %q", got, "null")
	}
}

func TestTextContent_Empty(t *testing.T) {
	t.Parallel()

	if got := textContent(&anthropic.Message{}); got != "" {
		t.Errorf("textContent = %q, want empty", got)
	}
}
