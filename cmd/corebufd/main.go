// Command corebufd is a demo driver wiring the transaction buffer, the
// LWN member manager, and the builder buffer into a three-stage
// pipeline: a parser goroutine stages synthetic redo records and
// orders them per LWN, and a writer goroutine drains the resulting
// output chunk chain. Grounded on cmd/joydb/main.go's flag parsing and
// goroutine-based server/REPL split, here mirrored as parser/writer
// goroutines.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/ologcdc/corebuf/internal/builder"
	"github.com/ologcdc/corebuf/internal/chunkpool"
	"github.com/ologcdc/corebuf/internal/ctx"
	"github.com/ologcdc/corebuf/internal/ident"
	"github.com/ologcdc/corebuf/internal/lwn"
	"github.com/ologcdc/corebuf/internal/obslog"
	"github.com/ologcdc/corebuf/internal/redo"
	"github.com/ologcdc/corebuf/internal/txbuffer"
)

func main() {
	recordCount := flag.Int("records", 2000, "number of synthetic redo records to stage")
	xidCount := flag.Int("xids", 8, "number of concurrent transactions to spread records across")
	batchSize := flag.Int("batch", 200, "records per simulated LWN boundary")
	traceMask := flag.Uint64("trace-mask", ctx.TraceLwn|ctx.TraceTransaction, "enabled trace bitmask")
	seqURL := flag.String("seq-url", "", "Seq ingestion URL; empty disables the Seq sink")
	flag.Parse()

	stack, closeFn, err := obslog.Setup(*seqURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logging:", err)
		os.Exit(1)
	}
	defer closeFn()
	slog.SetDefault(stack.Log)

	pool := chunkpool.New(ctx.MemoryChunkSize, 0)
	cctx := ctx.New(pool, stack.Log)
	cctx.TraceMask = *traceMask

	txBuf := txbuffer.New(cctx)
	defer txBuf.Close()

	lwnMgr, err := lwn.New(cctx)
	if err != nil {
		stack.Log.Error("failed to create lwn manager", "error", err)
		os.Exit(1)
	}
	defer lwnMgr.Close()

	buf := builder.New(cctx)
	if err := buf.Initialize(); err != nil {
		stack.Log.Error("failed to initialize builder buffer", "error", err)
		os.Exit(1)
	}
	defer buf.Close()

	deliveries := make(chan delivery, 64)
	done := make(chan struct{})

	go writer(stack, buf, deliveries, done)
	parse(stack, cctx, txBuf, lwnMgr, buf, *recordCount, *xidCount, *batchSize, deliveries)

	close(deliveries)
	<-done

	txBuf.Purge()

	var minSeq ident.Seq = ^ident.Seq(0)
	var minOffset uint64
	var minXid ident.Xid
	txBuf.Checkpoint(&minSeq, &minOffset, &minXid)
	stack.Log.Info("checkpoint scan complete", "min_sequence", minSeq, "min_offset", minOffset, "min_xid", minXid.String())
}

// delivery is what the parser hands the writer for one fully staged
// message: its header plus the chunk it was frozen into, so the writer
// can decide when that chunk's prefix is safe to release.
type delivery struct {
	header  *builder.MessageHeader
	chunkID uint64
}

// parse generates synthetic redo records spread across xidCount
// transactions, stages each one in txBuf, and queues it as an LWN
// member. Every batchSize records it treats the accumulated members as
// one LWN: it drains them in (scn, subScn, block, offset) order,
// freezes each into the builder chain, and hands the result to the
// writer over deliveries.
func parse(stack *obslog.Stack, cctx *ctx.Ctx, txBuf *txbuffer.TransactionBuffer, lwnMgr *lwn.Manager, buf *builder.Buffer, recordCount, xidCount, batchSize int, deliveries chan<- delivery) {
	var lwnIdx uint32
	var messageID uint64

	for i := 0; i < recordCount; i++ {
		xidSlot := i % xidCount
		xid := ident.NewXid(1, uint16(xidSlot), uint32(i/xidCount))
		conID := ident.ConId(0)
		scn := ident.Scn(1000 + i/batchSize)
		subScn := ident.SubScn(i % batchSize)
		block := ident.Blk(100 + xidSlot)

		payload := []byte(fmt.Sprintf("xid=%s scn=%d row=%06d", xid.String(), scn, i))
		rec := &redo.RedoLogRecord{
			Size:            uint16(len(payload)),
			FieldCnt:        1,
			FieldPos:        0,
			FieldSizesDelta: 0,
			OpCode:          0x0b01,
			Scn:             scn,
			SubScn:          subScn,
			Dba:             ident.Dba(block),
			DataOffset:      uint32(i),
			DataExt:         payload,
		}

		tx, err := txBuf.FindTransaction(xid, conID, false, true, false)
		if err != nil {
			stack.Log.Warn("find transaction failed", "xid", xid.String(), "error", err)
			continue
		}
		if tx.FirstTc == nil {
			tx.FirstSequence = ident.Seq(i / batchSize)
			tx.FirstOffset = uint64(i)
		}

		if err := txBuf.AddTransactionChunk(tx, rec, nil); err != nil {
			stack.Log.Warn("add transaction chunk failed", "xid", xid.String(), "error", err)
			continue
		}

		member, err := lwnMgr.Allocate(uint64(len(payload)))
		if err != nil {
			stack.Log.Warn("lwn allocate failed", "error", err)
			continue
		}
		copy(member.Data, payload)
		member.Offset = uint64(i)
		member.Size = uint32(len(payload))
		member.Scn = scn
		member.SubScn = subScn
		member.Block = block
		if err := lwnMgr.Add(member); err != nil {
			stack.Log.Warn("lwn add failed", "error", err)
			continue
		}

		cctx.Trace(ctx.TraceTransaction, fmt.Sprintf("staged xid=%s offset=%d", xid.String(), i))

		if (i+1)%batchSize == 0 || i == recordCount-1 {
			drainLwn(stack, cctx, lwnMgr, buf, lwnIdx, &messageID, deliveries)
			lwnIdx++
		}
	}
}

// drainLwn pops every currently queued member in ascending (scn,
// subScn, block, offset) order, opening one otel span for the whole
// LWN, and freezes each member's bytes into the builder chain.
func drainLwn(stack *obslog.Stack, cctx *ctx.Ctx, lwnMgr *lwn.Manager, buf *builder.Buffer, lwnIdx uint32, messageID *uint64, deliveries chan<- delivery) {
	spanCtx, span := stack.Tracer.Start(context.Background(), "lwn.drain")
	defer span.End()

	records := lwnMgr.Records()
	cctx.Trace(ctx.TraceLwn, fmt.Sprintf("draining lwn %d with %d members", lwnIdx, records))

	for {
		member := lwnMgr.PopMin()
		if member == nil {
			break
		}

		*messageID++
		header := &builder.MessageHeader{
			ID:      *messageID,
			LwnIdx:  lwnIdx,
			Scn:     member.Scn,
			LwnScn:  member.Scn,
			Obj:     uint32(member.Block),
			TraceID: uuid.New(),
		}

		msg := &builder.Message{Header: header}
		chunk, err := appendMessage(buf, msg, header, member.Data)
		if err != nil {
			stack.Log.Error("failed to append message", "error", err, "lwn", lwnIdx)
			continue
		}

		select {
		case deliveries <- delivery{header: header, chunkID: chunk.ID}:
		case <-spanCtx.Done():
			return
		}
	}

	lwnMgr.Reset()
}

// appendMessage writes payload into buf's current chunk, expanding the
// chain when it doesn't fit, and freezes the written bytes into the
// chunk's published Size once done. This is demo-only glue standing in
// for original_source's Builder class, the serializer that calls into
// BuilderBuffer — out of scope here per the builder package's own
// contract (see DESIGN.md), but its caller-side shape still has to
// exist for the pipeline to produce anything to drain.
func appendMessage(buf *builder.Buffer, msg *builder.Message, header *builder.MessageHeader, payload []byte) (*builder.Chunk, error) {
	chunk := buf.End()
	header.Chunk = chunk
	header.Offset = chunk.Size.Load()

	remaining := payload
	for len(remaining) > 0 {
		chunk = buf.End()
		used := chunk.Size.Load() + msg.Position
		capLeft := buf.OutputBufferDataSize() - used
		if capLeft == 0 {
			// Expand itself relocates header.Chunk/Offset when it takes
			// the copy path; on the freeze path header keeps pointing at
			// the message's original start chunk and later readers walk
			// Chunk.Next to find the continuation.
			if err := buf.Expand(true, msg); err != nil {
				return nil, err
			}
			continue
		}

		n := uint64(len(remaining))
		if n > capLeft {
			n = capLeft
		}
		copy(chunk.Data[used:used+n], remaining[:n])
		msg.Position += n
		remaining = remaining[n:]
	}

	chunk = buf.End()
	chunk.Size.Add(msg.Position)
	msg.Size += msg.Position
	header.Size.Store(msg.Size)
	msg.Position = 0

	return chunk, nil
}

// writer drains deliveries, logging each message's header and
// releasing builder chunks that have fallen far enough behind the
// newest delivered chunk.
func writer(stack *obslog.Stack, buf *builder.Buffer, deliveries <-chan delivery, done chan<- struct{}) {
	defer close(done)

	const releaseWindow = 4
	var newestChunkID uint64

	for d := range deliveries {
		stack.Hot.Debugw("delivered message", "id", d.header.ID, "lwn_idx", d.header.LwnIdx,
			"scn", d.header.Scn.String(), "trace_id", d.header.TraceID.String())

		if d.chunkID > newestChunkID {
			newestChunkID = d.chunkID
		}
		if newestChunkID > releaseWindow {
			buf.ReleaseBuffers(newestChunkID - releaseWindow)
		}
	}
}
