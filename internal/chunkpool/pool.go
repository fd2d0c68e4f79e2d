// Package chunkpool implements the process-wide fixed-size memory chunk
// source consumed by the transaction buffer, builder buffer, and LWN
// manager, per spec.md §4.1.
//
// One free-list per ctx.ModuleTag keeps a burst of transaction-chunk
// churn from starving builder-chunk allocation and vice versa, following
// the chunk-lifecycle isolation kluzzebass-gastrolog's ChunkManager
// interface models for its own (disk-backed) chunks.
package chunkpool

import (
	"sync"

	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/ctx"
)

// Pool hands out and reclaims fixed-size byte slices tagged by module.
// It is safe for concurrent use.
type Pool struct {
	chunkSize int
	maxChunks int // 0 means unbounded

	mu       sync.Mutex
	free     map[ctx.ModuleTag][][]byte
	acquired map[ctx.ModuleTag]int
}

// New creates a Pool handing out chunks of chunkSize bytes. maxChunks
// bounds the number of chunks simultaneously acquired across all tags;
// 0 means unbounded. Exhaustion surfaces as a *corerr.Error of kind
// corerr.PoolExhausted, never a panic.
func New(chunkSize, maxChunks int) *Pool {
	return &Pool{
		chunkSize: chunkSize,
		maxChunks: maxChunks,
		free:      make(map[ctx.ModuleTag][][]byte),
		acquired:  make(map[ctx.ModuleTag]int),
	}
}

// Acquire returns a zeroed chunk of the pool's fixed size, reusing a
// previously released chunk for tag when one is available.
func (p *Pool) Acquire(tag ctx.ModuleTag, hot bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if freelist := p.free[tag]; len(freelist) > 0 {
		n := len(freelist)
		chunk := freelist[n-1]
		p.free[tag] = freelist[:n-1]
		clear(chunk)
		p.acquired[tag]++
		return chunk, nil
	}

	if p.maxChunks > 0 {
		total := 0
		for _, n := range p.acquired {
			total += n
		}
		if total >= p.maxChunks {
			return nil, corerr.New(corerr.PoolExhausted,
				"chunk pool exhausted: %d chunks in use for tag %s", total, tag)
		}
	}

	chunk := make([]byte, p.chunkSize)
	p.acquired[tag]++
	return chunk, nil
}

// Release returns chunk to the pool's free-list for tag so a later
// Acquire can reuse its backing array.
func (p *Pool) Release(tag ctx.ModuleTag, chunk []byte, hot bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.acquired[tag] > 0 {
		p.acquired[tag]--
	}
	p.free[tag] = append(p.free[tag], chunk)
}

// Stats reports the number of chunks currently acquired (not released)
// for tag, for diagnostics.
func (p *Pool) Stats(tag ctx.ModuleTag) (acquired, freed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired[tag], len(p.free[tag])
}
