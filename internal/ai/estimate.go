package ai

// estimateTokens is a byte heuristic (~4 bytes per token plus a small
// per-message overhead) for hosts that expose no tokenizer endpoint. It is
// intentionally conservative; limit checks only need a pre-flight bound.
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)/4 + 4
	}
	return total + 2
}
