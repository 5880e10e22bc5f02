package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SequenceGenerator produces deterministic correlation tokens.
//
// The Nth call to Generate returns 00000000-0000-4000-8000-00000000000N (hex),
// so the same scenario yields byte-identical traces and golden files.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu  sync.Mutex
	seq uint64
}

// NewSequenceGenerator creates a generator whose first token ends in 1.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{}
}

// Generate returns the next token in the sequence.
//
// Implements correlate.TokenGenerator.
func (g *SequenceGenerator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return SeqToken(g.seq)
}

// Reset restarts the sequence. After Reset, the next token ends in 1.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// SeqToken returns the token a SequenceGenerator emits on its nth call.
func SeqToken(n uint64) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012x", n))
}

// ScriptedGenerator replays a fixed list of tokens, then repeats the last one.
//
// Used to force token collisions in tests.
type ScriptedGenerator struct {
	mu     sync.Mutex
	tokens []uuid.UUID
	calls  int
}

// NewScriptedGenerator creates a generator over tokens. tokens must not be empty.
func NewScriptedGenerator(tokens ...uuid.UUID) *ScriptedGenerator {
	if len(tokens) == 0 {
		panic("testutil: ScriptedGenerator needs at least one token")
	}
	return &ScriptedGenerator{tokens: tokens}
}

// Generate returns the next scripted token.
func (g *ScriptedGenerator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := min(g.calls, len(g.tokens)-1)
	g.calls++
	return g.tokens[i]
}

// Calls reports how many tokens were requested.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
