package collaboration

import (
	"sort"
	"strings"
)

// minQuestionLength is the shortest stripped question worth sending on its
// own; anything shorter is replaced by the whole message.
const minQuestionLength = 3

// Classifier decides whether a chat message is addressed to the assistant.
// Matching is case-insensitive on the trimmed body: a leading mention token,
// or any trigger phrase anywhere.
type Classifier struct {
	mention  string
	triggers []string
}

func NewClassifier(mention string, triggers []string) Classifier {
	c := Classifier{mention: strings.ToLower(strings.TrimSpace(mention))}
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			c.triggers = append(c.triggers, t)
		}
	}
	// "hey assistant" must win over "assistant" when stripping
	sort.SliceStable(c.triggers, func(i, j int) bool {
		return len(c.triggers[i]) > len(c.triggers[j])
	})
	return c
}

func (c Classifier) IsAIDirected(body string) bool {
	s := strings.ToLower(strings.TrimSpace(body))
	if c.mention != "" && strings.HasPrefix(s, c.mention) {
		return true
	}
	for _, t := range c.triggers {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// ExtractQuestion strips the mention or the first trigger phrase from body.
func (c Classifier) ExtractQuestion(body string) string {
	text := strings.TrimSpace(body)
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// case folding changed byte offsets; keep the message as is
		return text
	}

	question := text
	switch {
	case c.mention != "" && strings.HasPrefix(lower, c.mention):
		question = text[len(c.mention):]
	default:
		for _, t := range c.triggers {
			if i := strings.Index(lower, t); i >= 0 {
				question = text[:i] + text[i+len(t):]
				break
			}
		}
	}

	question = strings.Trim(question, " \t\n,:;.-")
	if len(question) < minQuestionLength {
		return text
	}
	return question
}
