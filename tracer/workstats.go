package tracer

import "github.com/hyungman/SpRay/mpi"

// WorkStats tracks the domain blocks this rank owes the system for the
// next depth. A domain block is a (domain, nonempty queue) pair, counted
// at most once per (domain, kind) across threads: thread shards of one
// domain queue travel in a single message, so the clamp keeps the receive
// prediction aligned with the message count. Blocks owed to this rank
// itself (local queues, speculation replay, parked rays) never cross the
// wire and are subtracted back out after the reduce.
//
// The per-depth reduce of the per-rank totals is the termination test: a
// zero world total means no rank holds work and no ray is in flight.
type WorkStats struct {
	numRanks int

	radBlocks  []int64 // per-domain radiance block flags, clamped 0/1
	shadBlocks []int64 // per-domain shadow block flags, clamped 0/1
	selfBlocks int64   // speculation and pending blocks owed to this rank

	reduceBuf []int64 // per-destination-rank totals

	worldNumBlocks  int64
	rankNumBlocks   int64
	numBlocksToRecv int64
}

func NewWorkStats(numRanks, numDomains int) *WorkStats {
	return &WorkStats{
		numRanks:   numRanks,
		radBlocks:  make([]int64, numDomains),
		shadBlocks: make([]int64, numDomains),
		reduceBuf:  make([]int64, numRanks),
	}
}

// Reset clears the per-depth counts.
func (w *WorkStats) Reset() {
	for i := range w.radBlocks {
		w.radBlocks[i] = 0
		w.shadBlocks[i] = 0
	}
	for i := range w.reduceBuf {
		w.reduceBuf[i] = 0
	}
	w.selfBlocks = 0
}

// MarkRadianceBlock flags a nonempty radiance queue for a domain.
func (w *WorkStats) MarkRadianceBlock(domainID int) { w.radBlocks[domainID] = 1 }

// MarkShadowBlock flags a nonempty shadow queue for a domain.
func (w *WorkStats) MarkShadowBlock(domainID int) { w.shadBlocks[domainID] = 1 }

// AddSelfBlocks credits work this rank will hand to itself.
func (w *WorkStats) AddSelfBlocks(n int) { w.selfBlocks += int64(n) }

// Merge ORs another thread's block flags into this one and accumulates
// its self-owed work.
func (w *WorkStats) Merge(o *WorkStats) {
	for i := range w.radBlocks {
		w.radBlocks[i] |= o.radBlocks[i]
		w.shadBlocks[i] |= o.shadBlocks[i]
	}
	w.selfBlocks += o.selfBlocks
}

// Fold converts the clamped per-domain flags into per-rank totals using
// the domain ownership map.
func (w *WorkStats) Fold(selfRank int, rankOf func(domainID int) int) {
	for i := range w.reduceBuf {
		w.reduceBuf[i] = 0
	}
	for id := range w.radBlocks {
		n := w.radBlocks[id] + w.shadBlocks[id]
		if n > 0 {
			w.reduceBuf[rankOf(id)] += n
		}
	}
	w.reduceBuf[selfRank] += w.selfBlocks
}

// Reduce runs the termination collective: an element-wise sum of the
// per-rank vectors at the root followed by a scatter handing every rank
// the world total and its own portion. The portion minus the blocks this
// rank already queued for itself predicts the incoming message count for
// the depth's comm phase.
func (w *WorkStats) Reduce(comm *mpi.Comm) {
	alreadyOwned := w.reduceBuf[comm.Rank()]
	w.worldNumBlocks, w.rankNumBlocks = comm.ReduceScatterWork(w.reduceBuf)
	w.numBlocksToRecv = w.rankNumBlocks - alreadyOwned

	if DebugChecks && w.numBlocksToRecv < 0 {
		panic("tracer: negative block counter after reduce")
	}
}

// AllDone reports global quiescence.
func (w *WorkStats) AllDone() bool { return w.worldNumBlocks == 0 }

// RecvDone reports whether all expected incoming blocks have arrived.
func (w *WorkStats) RecvDone(numBlocksReceived int) bool {
	return int64(numBlocksReceived) >= w.numBlocksToRecv
}
