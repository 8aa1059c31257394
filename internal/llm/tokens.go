package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// The offline loader embeds the BPE ranks so counting never hits the network.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// cl100k_base is close enough for every backend we talk to; counts are only
// used to keep prompts under a budget.
func tokenizer() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens returns the number of tokens in text, falling back to
// EstimateTokens if the encoding cannot be loaded.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := tokenizer()
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateTokens estimates the number of tokens in the given text.
// Uses a simple heuristic of approximately 4 characters per token,
// which is a reasonable approximation for English text with GPT-style tokenizers.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateToTokens cuts text down to at most limit tokens. It reports whether
// anything was cut. A limit of zero or less leaves text untouched.
func TruncateToTokens(text string, limit int) (string, bool) {
	if limit <= 0 || text == "" {
		return text, false
	}

	enc := tokenizer()
	if enc == nil {
		maxBytes := limit * 4
		if len(text) <= maxBytes {
			return text, false
		}
		return validUTF8Prefix(text, maxBytes), true
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text, false
	}
	return enc.Decode(tokens[:limit]), true
}

// validUTF8Prefix returns at most n bytes of s without splitting a rune.
func validUTF8Prefix(s string, n int) string {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
