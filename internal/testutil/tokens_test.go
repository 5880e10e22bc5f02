package testutil

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceGenerator_Deterministic(t *testing.T) {
	gen := NewSequenceGenerator()

	assert.Equal(t, "00000000-0000-4000-8000-000000000001", gen.Generate().String())
	assert.Equal(t, "00000000-0000-4000-8000-000000000002", gen.Generate().String())

	gen.Reset()
	assert.Equal(t, SeqToken(1), gen.Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator()

	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok := gen.Generate()
				mu.Lock()
				seen[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
}

func TestScriptedGenerator_RepeatsLast(t *testing.T) {
	a, b := SeqToken(10), SeqToken(11)
	gen := NewScriptedGenerator(a, b)

	assert.Equal(t, a, gen.Generate())
	assert.Equal(t, b, gen.Generate())
	assert.Equal(t, b, gen.Generate())
	assert.Equal(t, 3, gen.Calls())
}

func TestReverseHook_RoundTrip(t *testing.T) {
	var h ReverseHook
	enc, err := h.Encrypt(t.Context(), "héllo", "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1:olléh", enc)

	dec, err := h.Decrypt(t.Context(), enc, "k1")
	require.NoError(t, err)
	assert.Equal(t, "héllo", dec)

	_, err = h.Decrypt(t.Context(), enc, "k2")
	assert.Error(t, err)
}

func TestPeopleDescriptorMatchesSpec(t *testing.T) {
	s, err := People.Schema()
	require.NoError(t, err)

	declared, ok := PeopleSpec().Store("Person")
	require.True(t, ok)
	assert.NoError(t, s.Check(declared))
}
