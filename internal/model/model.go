// Package model loads checkpoints from a snapshot directory and runs
// autoregressive inference over them. Architectures are described by tensor
// name specs; the dense llama family and the aria expert-routing family share
// the same attention stack and differ only in the feed-forward block.
package model

// Model represents a generative language model capable of autoregressive inference.
type Model interface {
	// ForwardToken advances the model by one token and returns the logits for the next token.
	ForwardToken(id int) ([]float32, error)
	// Reset clears the model's internal state (KV cache, position).
	Reset()
}
