package tokens

import (
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// FallbackEncoding is used for any model tiktoken does not know.
	FallbackEncoding = "cl100k_base"

	perMessageOverhead = 4
	perNameAdjustment  = -1
	replyPriming       = 2
)

// Encoder turns text into sub-word token ids. *tiktoken.Tiktoken satisfies it.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// EncoderResolver returns the encoder for a model name, or an error if the name is unknown.
type EncoderResolver func(model string) (Encoder, error)

// Counter estimates the prompt size of a message list.
type Counter struct {
	resolve  EncoderResolver
	fallback Encoder

	mu    sync.RWMutex
	cache map[string]Encoder
}

// NewCounter builds a counter. fallback must not be nil.
func NewCounter(resolve EncoderResolver, fallback Encoder) *Counter {
	return &Counter{
		resolve:  resolve,
		fallback: fallback,
		cache:    make(map[string]Encoder),
	}
}

var loaderOnce sync.Once

// NewTiktokenCounter builds a counter over tiktoken with embedded BPE ranks,
// so no encoding is ever downloaded.
func NewTiktokenCounter() (*Counter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	fallback, err := tiktoken.GetEncoding(FallbackEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", FallbackEncoding, err)
	}

	resolve := func(model string) (Encoder, error) {
		return tiktoken.EncodingForModel(model)
	}
	return NewCounter(resolve, fallback), nil
}

// encoder returns the cached encoder for model, resolving it on first use.
func (c *Counter) encoder(model string) Encoder {
	c.mu.RLock()
	enc, ok := c.cache[model]
	c.mu.RUnlock()
	if ok {
		return enc
	}

	enc = c.fallback
	if c.resolve != nil {
		if resolved, err := c.resolve(model); err == nil && resolved != nil {
			enc = resolved
		}
	}

	c.mu.Lock()
	c.cache[model] = enc
	c.mu.Unlock()
	return enc
}

// MessageTokens is the cost of one message: its field values plus framing.
func (c *Counter) MessageTokens(msg *schema.Message, model string) int {
	if msg == nil {
		return 0
	}
	enc := c.encoder(model)
	n := perMessageOverhead

	add := func(s string) {
		if s != "" {
			n += len(enc.Encode(s, nil, nil))
		}
	}
	add(string(msg.Role))
	add(msg.Content)
	add(msg.ToolCallID)
	if msg.Name != "" {
		add(msg.Name)
		n += perNameAdjustment
	}
	for _, tc := range msg.ToolCalls {
		add(tc.ID)
		add(tc.Function.Name)
		add(tc.Function.Arguments)
	}
	return n
}

// Count estimates the tokens needed to send msgs to model, including the
// priming for the reply. Unknown models use the fallback encoding.
func (c *Counter) Count(msgs []*schema.Message, model string) int {
	total := replyPriming
	for _, m := range msgs {
		total += c.MessageTokens(m, model)
	}
	return total
}
