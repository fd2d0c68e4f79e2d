package chunkpool

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/ctx"
)

// =============================================================================
// SUITE 1: ACQUIRE/RELEASE AND REUSE
// =============================================================================

func TestAcquireReturnsZeroedChunk(t *testing.T) {
	p := New(64, 0)

	chunk, err := p.Acquire(ctx.ModuleParser, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	assert.Equal(t, 64, len(chunk))
	for _, b := range chunk {
		assert.Equal(t, byte(0), b)
	}
}

func TestReleaseReusesBackingArray(t *testing.T) {
	p := New(64, 0)

	chunk, err := p.Acquire(ctx.ModuleParser, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	chunk[0] = 0xFF
	p.Release(ctx.ModuleParser, chunk, false)

	acquired, freed := p.Stats(ctx.ModuleParser)
	assert.Equal(t, 0, acquired)
	assert.Equal(t, 1, freed)

	reused, err := p.Acquire(ctx.ModuleParser, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	assert.Equal(t, byte(0), reused[0])

	acquired, freed = p.Stats(ctx.ModuleParser)
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 0, freed)
}

// =============================================================================
// SUITE 2: PER-TAG ISOLATION AND EXHAUSTION
// =============================================================================

func TestFreeListsAreIsolatedPerTag(t *testing.T) {
	p := New(64, 0)

	chunk, err := p.Acquire(ctx.ModuleParser, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(ctx.ModuleParser, chunk, false)

	_, freed := p.Stats(ctx.ModuleBuilder)
	assert.Equal(t, 0, freed)
	_, freed = p.Stats(ctx.ModuleParser)
	assert.Equal(t, 1, freed)
}

func TestAcquireExhaustionReturnsPoolExhausted(t *testing.T) {
	p := New(64, 1)

	_, err := p.Acquire(ctx.ModuleParser, false)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err = p.Acquire(ctx.ModuleTransactions, false)
	if err == nil {
		t.Fatal("expected pool exhaustion error")
	}
	kind, ok := corerr.KindOf(err)
	assert.Equal(t, true, ok)
	assert.Equal(t, corerr.PoolExhausted, kind)
}
