package trajutil

import (
	"math"

	"github.com/wildstyl3r/tracktoy/internal/traj"
)

// ZCrossing is the outcome of a z search.
type ZCrossing struct {
	Time       float64 // crossing time, or the no-crossing marker
	Iterations int     // piece inversions performed
	Forward    bool    // a piece moving toward the target was found at or after the hint
	Found      bool
}

// ZTime returns a time t >= tHint at which the trajectory crosses z, or a
// time past the trajectory end when there is none.
func ZTime[P traj.Piece[P]](tr *traj.Trajectory[P], tHint, z float64) float64 {
	return ZSearch(tr, tHint, z).Time
}

// ZSearch inverts z(t) piece by piece. The search starts at the first piece
// at or after tHint whose local velocity points toward z, then follows the
// piece holding each candidate until it settles on a piece, oscillates
// between two, or has tried as many times as there are pieces.
func ZSearch[P traj.Piece[P]](tr *traj.Trajectory[P], tHint, z float64) ZCrossing {
	r := tr.Range()
	res := ZCrossing{Time: r.End + NoCrossingOffset}
	if !(tHint <= r.End) || math.IsNaN(z) {
		return res
	}
	n := tr.PieceCount()
	idx := tr.NearestIndex(tHint)
	for ; idx < n; idx++ {
		p := tr.Piece(idx)
		begin := p.Range().Begin
		vz := p.Velocity(begin).Z
		if vz == 0 {
			continue
		}
		if (z-p.Position(begin).Z)/vz > 0 {
			res.Forward = true
			break
		}
	}
	if !res.Forward {
		// nothing heads toward z; a single inversion from the last piece
		// still catches a crossing behind its start
		idx = n - 1
	}

	var t float64
	prev, prevPrev := idx, idx
	for {
		res.Iterations++
		t = tr.Piece(idx).TimeAtZ(z)
		prevPrev, prev = prev, idx
		idx = tr.NearestIndex(t)
		if !(t < r.End) || idx == prev || idx == prevPrev || res.Iterations >= n {
			break
		}
	}
	if t >= tHint && t <= r.End {
		res.Time = t
		res.Found = true
	}
	return res
}
