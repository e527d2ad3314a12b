package dialogue

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter estimates 4 bytes per token.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int { return len(text) / 4 }

// TiktokenCounter counts with cl100k_base, falling back to the heuristic when
// the encoding cannot be loaded (it is fetched on first use).
type TiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return HeuristicCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}
