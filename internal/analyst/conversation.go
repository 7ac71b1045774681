package analyst

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// HistoryTurns is how many past exchanges are replayed into a prompt.
	HistoryTurns = 3
	// historyAnswerRunes caps each replayed answer.
	historyAnswerRunes = 200
)

// Turn is one question and its answer.
type Turn struct {
	Query  string    `json:"query"`
	Answer string    `json:"answer"`
	At     time.Time `json:"at"`
}

// Conversation keeps the most recent turns of a session. The zero value is
// ready to use and it is safe for concurrent use.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// NewConversation seeds a conversation, keeping only the newest turns.
func NewConversation(turns []Turn) *Conversation {
	c := &Conversation{}
	for _, t := range turns {
		c.append(t)
	}
	return c
}

// Add records an exchange.
func (c *Conversation) Add(query, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.append(Turn{Query: query, Answer: answer, At: time.Now()})
}

func (c *Conversation) append(t Turn) {
	c.turns = append(c.turns, t)
	if len(c.turns) > HistoryTurns {
		c.turns = append([]Turn(nil), c.turns[len(c.turns)-HistoryTurns:]...)
	}
}

// Turns returns the retained turns, oldest first.
func (c *Conversation) Turns() []Turn {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

// Len is the number of retained turns.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset forgets every turn.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}

// Prompt renders the retained turns for inclusion in a prompt. It is empty
// when there is no history.
func (c *Conversation) Prompt() string {
	turns := c.Turns()
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n**이전 대화 내역** (참고용):\n")
	for i, t := range turns {
		fmt.Fprintf(&b, "%d. 질문: %s\n", i+1, t.Query)
		fmt.Fprintf(&b, "   답변: %s...\n\n", truncateRunes(t.Answer, historyAnswerRunes))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
