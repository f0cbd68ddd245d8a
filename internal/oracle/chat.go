package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/learntube/learntube/internal/metrics"
)

const (
	chatHistoryTurns = 6
	chatTemperature  = 0.7
	chatMaxTokens    = 500
)

// Canned replies returned instead of an error.
const (
	ReplyUnavailable = "I'm sorry, but I'm currently unavailable. Please try again later."
	ReplyMalformed   = "I apologize, but I couldn't process that request. Could you try rephrasing?"
	ReplyTimeout     = "I'm taking longer than expected to respond. Please try again."
	ReplyRateLimited = "I'm receiving too many requests right now. Please wait a moment and try again."
	ReplyTrouble     = "I'm having trouble responding right now. Please try again in a moment."
)

// UserContext is the profile embedded in the chat system prompt.
type UserContext struct {
	Name       string   `json:"name"`
	Categories []string `json:"selectedCategories"`
	Keywords   []string `json:"keywords"`
}

// Assistant answers learning questions in the context of a user profile.
type Assistant struct {
	llm Completer
}

// NewAssistant creates an Assistant.
func NewAssistant(llm Completer) *Assistant {
	return &Assistant{llm: llm}
}

// Chat answers message given the caller-owned history. It never fails: any
// error becomes one of the canned replies.
func (a *Assistant) Chat(ctx context.Context, message string, user UserContext, history []Message) string {
	msgs := make([]Message, 0, chatHistoryTurns+2)
	msgs = append(msgs, Message{Role: "system", Content: chatSystemPrompt(user)})
	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	for _, h := range history {
		if h.Role != "user" && h.Role != "assistant" {
			continue
		}
		msgs = append(msgs, h)
	}
	msgs = append(msgs, Message{Role: "user", Content: message})

	reply, err := a.llm.Complete(ctx, msgs, chatTemperature, chatMaxTokens)
	if err != nil {
		canned, outcome := cannedReply(err)
		metrics.OracleRequests.WithLabelValues("chat", outcome).Inc()
		slog.Warn("chat request failed", "outcome", outcome, "error", err)
		return canned
	}
	metrics.OracleRequests.WithLabelValues("chat", "ok").Inc()
	return strings.TrimSpace(reply)
}

func cannedReply(err error) (reply, outcome string) {
	switch {
	case errors.Is(err, errMissingKey):
		return ReplyUnavailable, "unavailable"
	case errors.Is(err, errEmptyReply):
		return ReplyMalformed, "malformed"
	case isTimeout(err):
		return ReplyTimeout, "timeout"
	case httpStatus(err) == http.StatusTooManyRequests:
		return ReplyRateLimited, "rate_limited"
	default:
		return ReplyTrouble, "error"
	}
}

func chatSystemPrompt(u UserContext) string {
	cats := strings.Join(u.Categories, ", ")
	primary := "your chosen field"
	if len(u.Categories) > 0 {
		primary = u.Categories[0]
	}

	var sb strings.Builder
	sb.WriteString("You are LearnTube AI, a focused and helpful learning assistant. Your role is to help users learn and grow in their chosen fields.\n\n")
	fmt.Fprintf(&sb, "User profile:\n- Name: %s\n- Learning focus: %s\n- Interests: %s\n\n", u.Name, cats, strings.Join(u.Keywords, ", "))
	fmt.Fprintf(&sb, `Your responsibilities:
1. Answer questions about the user's learning fields (%s)
2. Help plan their learning journey and create study schedules
3. Clarify concepts and explain difficult topics in their areas of interest
4. Recommend what to learn next
5. Help with doubts and questions about their coursework

Rules:
- Stay focused ONLY on topics related to %s and learning or education.
- If the user asks about unrelated topics, politely redirect them: "I'm here to help with your learning in %s and related topics. How can I assist with your studies?"
- Be encouraging and patient. Give clear, specific, actionable answers tied to their learning goals.

Keep responses concise (2-4 sentences unless the explanation needs more detail).`, cats, cats, primary)
	return sb.String()
}
