package openai

import (
	"fmt"
	"strings"

	"insights-backend/internal/llm"
)

// Message is a chat message sent to the provider.
type Message struct {
	Role    string
	Content string
}

// BuildMessages renders the chat messages for an analysis request.
func BuildMessages(req llm.Request) []Message {
	instructions, _ := llm.InstructionsFor(req.Task)

	var user strings.Builder
	if req.PriorContext != "" {
		user.WriteString("Accumulated context from earlier sessions:\n")
		user.WriteString(req.PriorContext)
		user.WriteString("\n\n")
	}
	if !req.SessionDate.IsZero() {
		fmt.Fprintf(&user, "Session date: %s\n\n", req.SessionDate.Format("2006-01-02"))
	}
	user.WriteString("Session transcript:\n")
	user.WriteString(req.Transcript)

	return []Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: user.String()},
	}
}

// buildFixMessages renders a repair prompt for malformed JSON output.
func buildFixMessages(req llm.Request, raw []byte) []Message {
	instructions, _ := llm.InstructionsFor(req.Task)
	return []Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: "The following output was supposed to be a single valid JSON object but is malformed. " +
			"Return the corrected JSON object only, with no commentary:\n\n" + string(raw)},
	}
}
