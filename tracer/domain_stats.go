package tracer

import (
	"sort"

	"github.com/hyungman/SpRay/mpi"
)

// DomainStats observes per-domain ray pressure for the out-of-core load
// scheduler. Counts are bucketed by the ray's virtual depth within the
// history window; after the per-depth all-reduce, every rank derives the
// same load schedule from the global view.
type DomainStats struct {
	numDomains int
	stats      []int64 // [domain * rayDomainListSize + depth]
	schedule   []int
}

type domainScore struct {
	domainID int
	score    int64
}

func NewDomainStats(numDomains int) *DomainStats {
	return &DomainStats{
		numDomains: numDomains,
		stats:      make([]int64, numDomains*rayDomainListSize),
		schedule:   make([]int, numDomains),
	}
}

// Reset clears the counters for the next depth.
func (d *DomainStats) Reset() {
	for i := range d.stats {
		d.stats[i] = 0
	}
}

// Add credits a domain with n rays queued at the given virtual depth.
func (d *DomainStats) Add(domainID int, depth int32, n int64) {
	if depth >= rayDomainListSize {
		depth = rayDomainListSize - 1
	}
	d.stats[domainID*rayDomainListSize+int(depth)] += n
}

// Get returns a domain's count at one depth.
func (d *DomainStats) Get(domainID, depth int) int64 {
	return d.stats[domainID*rayDomainListSize+depth]
}

// AllReduce sums the counters across ranks so the schedule is global.
func (d *DomainStats) AllReduce(comm *mpi.Comm) {
	comm.AllreduceSumInt64(d.stats)
}

// Schedule orders domains by descending score, weighting rays near the
// root of the depth window more heavily. Ties break to the lower domain
// id so every rank derives the identical order.
func (d *DomainStats) Schedule() []int {
	scores := make([]domainScore, d.numDomains)
	for id := 0; id < d.numDomains; id++ {
		var score int64
		for depth := 0; depth < rayDomainListSize; depth++ {
			w := int64(rayDomainListSize - depth)
			score += d.Get(id, depth) * w
		}
		scores[id] = domainScore{domainID: id, score: score}
	}

	sort.Slice(scores, func(a, b int) bool {
		if scores[a].score != scores[b].score {
			return scores[a].score > scores[b].score
		}
		return scores[a].domainID < scores[b].domainID
	})

	for i := range scores {
		d.schedule[i] = scores[i].domainID
	}
	return d.schedule
}
