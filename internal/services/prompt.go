package services

import (
	"fmt"
	"math"
	"strings"

	"watchparty/internal/models"
)

const systemPrompt = "You are an AI assistant for a video watch party. " +
	"Answer the viewer's question using the video context and the chat so far. " +
	"Only use video context inside the given time window and do not reveal events after it. " +
	"Keep answers short enough to read in a chat bubble."

// PromptInput is the material for one assistant prompt.
type PromptInput struct {
	Question       string
	VideoTimestamp float64
	Window         models.TimeWindow
	Segments       []*models.TranscriptSegment
	History        []*models.ChatMessage
}

// BuildPrompt renders the user prompt: timestamp, window, transcript lines,
// frame descriptions, recent chat, then the question.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	if in.VideoTimestamp > 0 {
		fmt.Fprintf(&b, "Current video timestamp: %s (%.0f seconds)\n",
			FormatTimestamp(in.VideoTimestamp), in.VideoTimestamp)
	}
	if in.Window.Bounded() {
		fmt.Fprintf(&b, "Context window: %s to %s\n",
			FormatTimestamp(in.Window.Start), FormatTimestamp(in.Window.End))
	}

	var transcript, frames []string
	for _, s := range in.Segments {
		line := fmt.Sprintf("[%s] %s", FormatTimestamp(s.StartSeconds), s.Text)
		if s.Kind == models.SegmentFrame {
			frames = append(frames, line)
		} else {
			transcript = append(transcript, line)
		}
	}
	writeSection(&b, "Transcript", transcript)
	writeSection(&b, "Frame Descriptions", frames)

	var chat []string
	for _, m := range in.History {
		role := "User"
		if m.Type == models.MessageTypeAI {
			role = "AI"
		}
		chat = append(chat, fmt.Sprintf("%s: %s", role, m.Body))
	}
	writeSection(&b, "Previous Chat Messages", chat)

	fmt.Fprintf(&b, "\nUser Question: %s\n", in.Question)

	return b.String()
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n--- %s ---\n%s\n", title, strings.Join(lines, "\n"))
}

// FormatTimestamp renders seconds as mm:ss, or h:mm:ss past an hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ReplyPreview is the first three words of a question, with "..." when cut.
func ReplyPreview(question string) string {
	words := strings.Fields(question)
	if len(words) <= 3 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:3], " ") + "..."
}
