package playback

import "sync/atomic"

// Token identifies one request issued through a GenerationGuard.
type Token uint64

// GenerationGuard hands out increasing tokens. A request holding a token
// that is no longer current has been superseded and must skip its
// generation-sensitive side effects.
type GenerationGuard struct {
	n atomic.Uint64
}

// Next supersedes every earlier token.
func (g *GenerationGuard) Next() Token {
	return Token(g.n.Add(1))
}

// Current returns the latest token.
func (g *GenerationGuard) Current() Token {
	return Token(g.n.Load())
}

// IsCurrent reports whether t is still the latest token.
func (g *GenerationGuard) IsCurrent(t Token) bool {
	return g.Current() == t
}
