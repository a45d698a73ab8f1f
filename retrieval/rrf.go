package retrieval

import (
	"sort"

	"github.com/flavioluiz/flavia-go/store"
)

const defaultRRFK = 60

// fusedResultInfo holds per-result method contribution metadata.
type fusedResultInfo struct {
	Methods []string
	VecRank int // 1-based, 0 = not present
	FTSRank int // 1-based, 0 = not present
}

// fuseRRF implements Reciprocal Rank Fusion over vector and FTS result
// lists: score = sum(1/(rrfK+rank)) over whichever lists a chunk appears in.
// Ties are broken by minimum rank, then chunk_id lexicographically, matching
// the deterministic ordering the hybrid-ranking property requires.
func fuseRRF(vecResults, ftsResults []store.ResultRow, rrfK int) ([]store.ResultRow, map[string]fusedResultInfo) {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	type fusedEntry struct {
		result  store.ResultRow
		score   float64
		info    fusedResultInfo
		minRank int
	}

	fused := make(map[string]*fusedEntry)

	for rank, r := range vecResults {
		e, ok := fused[r.ChunkID]
		if !ok {
			e = &fusedEntry{result: r, minRank: rank + 1}
			fused[r.ChunkID] = e
		}
		e.score += 1.0 / float64(rrfK+rank+1)
		e.info.Methods = append(e.info.Methods, "vector")
		e.info.VecRank = rank + 1
		if rank+1 < e.minRank {
			e.minRank = rank + 1
		}
	}

	for rank, r := range ftsResults {
		e, ok := fused[r.ChunkID]
		if !ok {
			e = &fusedEntry{result: r, minRank: rank + 1}
			fused[r.ChunkID] = e
		} else if r.Text != "" {
			// FTS text is the authoritative source; vector-side metadata wins
			// for everything else.
			e.result.Text = r.Text
		}
		e.score += 1.0 / float64(rrfK+rank+1)
		e.info.Methods = append(e.info.Methods, "fts")
		e.info.FTSRank = rank + 1
		if rank+1 < e.minRank {
			e.minRank = rank + 1
		}
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].minRank != entries[j].minRank {
			return entries[i].minRank < entries[j].minRank
		}
		return entries[i].result.ChunkID < entries[j].result.ChunkID
	})

	results := make([]store.ResultRow, len(entries))
	infoMap := make(map[string]fusedResultInfo, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Rank = e.score
		infoMap[e.result.ChunkID] = e.info
	}

	return results, infoMap
}
