package history

import (
	"github.com/cloudwego/eino/schema"
)

const (
	evictionFloor      = 3
	truncateThreshold  = 1000
	truncateKeep       = 800
	truncatedMarker    = "... [Message truncated]"
	collapsedTailCount = 2
)

// TokenCounter estimates prompt size. *tokens.Counter satisfies it.
type TokenCounter interface {
	Count(msgs []*schema.Message, model string) int
	MessageTokens(msg *schema.Message, model string) int
}

// Manager keeps a conversation within the token budget and guarantees the
// system message sits at index 0.
type Manager struct {
	counter TokenCounter
	model   string
	limit   int
	system  string
}

// NewManager builds a manager for the given budget. systemPrompt is the
// content re-inserted whenever the history lacks a system message.
func NewManager(counter TokenCounter, model string, safeTokenLimit int, systemPrompt string) *Manager {
	return &Manager{
		counter: counter,
		model:   model,
		limit:   safeTokenLimit,
		system:  systemPrompt,
	}
}

// Limit returns the safe token limit.
func (m *Manager) Limit() int {
	return m.limit
}

// SystemMessage returns a fresh copy of the canonical system message.
func (m *Manager) SystemMessage() *schema.Message {
	return schema.SystemMessage(m.system)
}

// Count proxies the counter with the manager's model.
func (m *Manager) Count(msgs []*schema.Message) int {
	return m.counter.Count(msgs, m.model)
}

// AppendAndTrim returns a new history with msg appended and the budget enforced.
// The input slice and its messages are not modified.
//
// Oldest non-system messages go first, never below three messages. If that is
// still not enough the history collapses to the system message plus the last
// two, and finally an oversized newest message is cut down. The result may still
// exceed the budget after the last step.
func (m *Manager) AppendAndTrim(history []*schema.Message, msg *schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history)+2)
	if len(history) == 0 || history[0] == nil || history[0].Role != schema.System {
		out = append(out, m.SystemMessage())
	}
	out = append(out, history...)
	out = append(out, msg)

	out = m.evict(out)

	if m.Count(out) > m.limit && len(out) > evictionFloor {
		collapsed := make([]*schema.Message, 0, 1+collapsedTailCount)
		collapsed = append(collapsed, out[0])
		collapsed = append(collapsed, out[len(out)-collapsedTailCount:]...)
		out = collapsed
	}

	if m.Count(out) > m.limit && len(out) > 1 {
		last := out[len(out)-1]
		if runes := []rune(last.Content); len(runes) > truncateThreshold {
			cut := *last
			cut.Content = string(runes[:truncateKeep]) + truncatedMarker
			out[len(out)-1] = &cut
		}
	}

	return out
}

// evict drops messages from index 1 until the list fits or the floor is hit.
// The count is additive, so one pass over per-message costs finds the same cut
// as re-counting after every removal.
func (m *Manager) evict(msgs []*schema.Message) []*schema.Message {
	costs := make([]int, len(msgs))
	total := m.counter.Count(nil, m.model)
	for i, msg := range msgs {
		costs[i] = m.counter.MessageTokens(msg, m.model)
		total += costs[i]
	}

	drop := 0
	for total > m.limit && len(msgs)-drop > evictionFloor {
		drop++
		total -= costs[drop]
	}
	if drop == 0 {
		return msgs
	}

	out := make([]*schema.Message, 0, len(msgs)-drop)
	out = append(out, msgs[0])
	return append(out, msgs[1+drop:]...)
}
