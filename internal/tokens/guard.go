// Package tokens bounds the size of inbound chat messages before they are
// forwarded to the conversation runtime. Counting real tokens instead of
// bytes keeps the limit meaningful for Portuguese text, where byte length
// and token length diverge.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Guard rejects messages whose token count exceeds the configured ceiling.
type Guard struct {
	codec tokenizer.Codec
	max   int
}

// NewGuard builds a Guard with the cl100k_base encoding, the one used by
// the assistant models this backend targets.
func NewGuard(maxTokens int) (*Guard, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}
	return &Guard{codec: codec, max: maxTokens}, nil
}

// Count returns the token count of the text.
func (g *Guard) Count(text string) (int, error) {
	ids, _, err := g.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("failed to encode text: %w", err)
	}
	return len(ids), nil
}

// MessageTooLongError reports a rejected message with its measured size.
type MessageTooLongError struct {
	Tokens int
	Max    int
}

func (e *MessageTooLongError) Error() string {
	return fmt.Sprintf("message is %d tokens, limit is %d", e.Tokens, e.Max)
}

// Check returns a *MessageTooLongError when the text exceeds the ceiling.
func (g *Guard) Check(text string) error {
	n, err := g.Count(text)
	if err != nil {
		return err
	}
	if n > g.max {
		return &MessageTooLongError{Tokens: n, Max: g.max}
	}
	return nil
}
