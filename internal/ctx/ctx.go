// Package ctx defines the Ctx collaborator contract consumed by the
// transaction buffer, builder buffer, and LWN manager: memory chunk
// allocation, endianness helpers, and structured event sinks.
package ctx

import (
	"encoding/binary"
	"log/slog"
)

// ModuleTag identifies which subsystem a memory chunk was acquired for,
// purely for accounting/diagnostics — the pool behind Ctx keeps one
// free-list per tag.
type ModuleTag int

const (
	ModuleParser ModuleTag = iota
	ModuleTransactions
	ModuleBuilder
)

func (m ModuleTag) String() string {
	switch m {
	case ModuleParser:
		return "parser"
	case ModuleTransactions:
		return "transactions"
	case ModuleBuilder:
		return "builder"
	default:
		return "unknown"
	}
}

// Trace bitmask flags. Only a small subset relevant to this core is
// defined; a real deployment would carry many more.
const (
	TraceLwn uint64 = 1 << iota
	TraceTransaction
	TraceRedo
	TraceLob
)

// Default sizing constants, matching the original engine's defaults.
const (
	MemoryChunkSizeMB = 1
	MemoryChunkSize   = MemoryChunkSizeMB * 1024 * 1024
)

// ChunkSource hands out and reclaims fixed-size memory chunks tagged by
// module. It is satisfied by *chunkpool.Pool; kept as an interface here
// so ident/redo/txbuffer/builder/lwn packages don't import chunkpool
// directly and create an import cycle.
type ChunkSource interface {
	Acquire(tag ModuleTag, hot bool) ([]byte, error)
	Release(tag ModuleTag, chunk []byte, hot bool)
}

// Ctx is the external collaborator every core component is built
// against: memory chunk allocation, the source log's endianness, and
// structured event sinks (error/warning/trace).
type Ctx struct {
	Pool  ChunkSource
	Order binary.ByteOrder
	Log   *slog.Logger

	// TraceMask is the bitmask of enabled trace flags; a Trace call is a
	// no-op unless flag&TraceMask != 0.
	TraceMask uint64

	// MemoryChunkSize is the fixed chunk size handed out by Pool.
	MemoryChunkSize int
}

// New builds a Ctx with the given chunk source, defaulting the byte
// order to little-endian (the common case for the redo formats this
// core targets) and the chunk size to MemoryChunkSize.
func New(pool ChunkSource, log *slog.Logger) *Ctx {
	return &Ctx{
		Pool:            pool,
		Order:           binary.LittleEndian,
		Log:             log,
		MemoryChunkSize: MemoryChunkSize,
	}
}

// GetMemoryChunk acquires a fixed-size chunk tagged for the given
// module.
func (c *Ctx) GetMemoryChunk(tag ModuleTag, hot bool) ([]byte, error) {
	return c.Pool.Acquire(tag, hot)
}

// FreeMemoryChunk returns a chunk previously obtained from
// GetMemoryChunk.
func (c *Ctx) FreeMemoryChunk(tag ModuleTag, chunk []byte, hot bool) {
	c.Pool.Release(tag, chunk, hot)
}

// Read16 reads a little/big-endian (per c.Order) uint16 at the start of
// b.
func (c *Ctx) Read16(b []byte) uint16 {
	return c.Order.Uint16(b)
}

// Write16 writes value as a uint16 at the start of b per c.Order.
func (c *Ctx) Write16(b []byte, value uint16) {
	c.Order.PutUint16(b, value)
}

// Error reports a fatal condition the caller must decide how to handle;
// it never panics.
func (c *Ctx) Error(code int, message string) {
	if c.Log != nil {
		c.Log.Error(message, "code", code)
	}
}

// Warning reports a non-fatal condition; the offending write has
// already been dropped by the caller.
func (c *Ctx) Warning(code int, message string) {
	if c.Log != nil {
		c.Log.Warn(message, "code", code)
	}
}

// Trace emits an advisory trace event when flag is enabled in c.TraceMask.
func (c *Ctx) Trace(flag uint64, message string) {
	if c.TraceMask&flag == 0 {
		return
	}
	if c.Log != nil {
		c.Log.Debug(message, "trace", flag)
	}
}
