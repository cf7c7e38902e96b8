// Package traj implements the piecewise particle trajectory: an ordered,
// contiguous sequence of analytic pieces sharing mass and charge.
package traj

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/tracktoy/internal/particle"
	"github.com/wildstyl3r/tracktoy/internal/timerange"
)

var (
	ErrGap      = errors.New("piece begins after the trajectory end")
	ErrOverlap  = errors.New("piece overlaps the trajectory")
	ErrMismatch = errors.New("piece mass or charge differs from the trajectory")
	ErrRange    = errors.New("invalid time range")
)

// Piece is the capability set of an analytic trajectory piece valid over a
// time range under a single nominal field. P is the concrete piece type, so
// Rebuild and WithRange return values of the same type.
type Piece[P any] interface {
	Range() timerange.Range
	Position(t float64) r3.Vec
	Direction(t float64) r3.Vec
	Velocity(t float64) r3.Vec
	Momentum(t float64) r3.Vec
	State(t float64) particle.State
	Mass() float64
	Charge() int
	NominalField() r3.Vec
	TimeAtZ(z float64) float64

	// Rebuild constructs a new piece of the same type from a state, a
	// nominal field and a validity range.
	Rebuild(s particle.State, bnom r3.Vec, r timerange.Range) (P, error)
	// WithRange returns a copy valid over r.
	WithRange(r timerange.Range) P
}

// Trajectory owns its pieces exclusively. It is never empty.
type Trajectory[P Piece[P]] struct {
	pieces []P
}

func New[P Piece[P]](first P) (*Trajectory[P], error) {
	if r := first.Range(); !r.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrRange, r)
	}
	return &Trajectory[P]{pieces: []P{first}}, nil
}

func (tr *Trajectory[P]) Range() timerange.Range {
	return timerange.New(tr.Front().Range().Begin, tr.Back().Range().End)
}

// Pieces exposes the ordered pieces; callers must not modify the slice.
func (tr *Trajectory[P]) Pieces() []P {
	return tr.pieces
}

func (tr *Trajectory[P]) PieceCount() int {
	return len(tr.pieces)
}

func (tr *Trajectory[P]) Piece(i int) P {
	return tr.pieces[i]
}

func (tr *Trajectory[P]) Front() P {
	return tr.pieces[0]
}

func (tr *Trajectory[P]) Back() P {
	return tr.pieces[len(tr.pieces)-1]
}

func (tr *Trajectory[P]) Mass() float64 {
	return tr.Front().Mass()
}

func (tr *Trajectory[P]) Charge() int {
	return tr.Front().Charge()
}

// NearestIndex returns the index of the piece whose range holds t. Times
// before the trajectory map to the first piece, times at or after its end to
// the last. On a join the later piece wins.
func (tr *Trajectory[P]) NearestIndex(t float64) int {
	n := len(tr.pieces)
	if !(t > tr.Front().Range().Begin) {
		return 0
	}
	if t >= tr.Back().Range().Begin {
		return n - 1
	}
	// first piece beginning after t, minus one
	return sort.Search(n, func(i int) bool {
		return tr.pieces[i].Range().Begin > t
	}) - 1
}

func (tr *Trajectory[P]) NearestPiece(t float64) P {
	return tr.pieces[tr.NearestIndex(t)]
}

func (tr *Trajectory[P]) Position(t float64) r3.Vec {
	return tr.NearestPiece(t).Position(t)
}

func (tr *Trajectory[P]) Direction(t float64) r3.Vec {
	return tr.NearestPiece(t).Direction(t)
}

func (tr *Trajectory[P]) Velocity(t float64) r3.Vec {
	return tr.NearestPiece(t).Velocity(t)
}

func (tr *Trajectory[P]) Momentum(t float64) r3.Vec {
	return tr.NearestPiece(t).Momentum(t)
}

func (tr *Trajectory[P]) State(t float64) particle.State {
	return tr.NearestPiece(t).State(t)
}

// Append adds p at the end of the trajectory. p must begin after the current
// last piece begins and no later than the trajectory end; the last piece is
// clipped to end where p begins. With allowTruncate, pieces beginning at or
// after p's begin are discarded first.
func (tr *Trajectory[P]) Append(p P, allowTruncate bool) error {
	pr := p.Range()
	if !pr.Valid() {
		return fmt.Errorf("%w: %v", ErrRange, pr)
	}
	if p.Mass() != tr.Mass() || p.Charge() != tr.Charge() {
		return fmt.Errorf("%w: mass %g charge %d, want mass %g charge %d", ErrMismatch, p.Mass(), p.Charge(), tr.Mass(), tr.Charge())
	}
	if pr.Begin > tr.Range().End {
		return fmt.Errorf("%w: piece %v, trajectory %v", ErrGap, pr, tr.Range())
	}
	if allowTruncate {
		n := len(tr.pieces)
		for n > 0 && tr.pieces[n-1].Range().Begin >= pr.Begin {
			n--
		}
		if n == 0 {
			clear(tr.pieces)
			tr.pieces = append(tr.pieces[:0], p)
			return nil
		}
		clear(tr.pieces[n:])
		tr.pieces = tr.pieces[:n]
	} else if pr.Begin <= tr.Back().Range().Begin {
		return fmt.Errorf("%w: piece %v begins before last piece %v", ErrOverlap, pr, tr.Back().Range())
	}
	last := len(tr.pieces) - 1
	tr.pieces[last] = tr.pieces[last].WithRange(timerange.New(tr.pieces[last].Range().Begin, pr.Begin))
	tr.pieces = append(tr.pieces, p)
	return nil
}

// SetRange changes the trajectory validity to r. Pieces entirely outside r
// are removed only when allowTruncate is set. At least one piece is always
// kept.
func (tr *Trajectory[P]) SetRange(r timerange.Range, allowTruncate bool) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %v", ErrRange, r)
	}
	first := tr.NearestIndex(r.Begin)
	last := tr.NearestIndex(r.End)
	// a piece beginning exactly at r.End would be left with zero length
	if last > first && tr.pieces[last].Range().Begin >= r.End {
		last--
	}
	if first > 0 || last < len(tr.pieces)-1 {
		if !allowTruncate {
			return fmt.Errorf("%w: range %v would remove pieces of %v", ErrOverlap, r, tr.Range())
		}
		kept := make([]P, last-first+1)
		copy(kept, tr.pieces[first:last+1])
		tr.pieces = kept
	}
	front := tr.pieces[0]
	tr.pieces[0] = front.WithRange(timerange.New(r.Begin, front.Range().End))
	last = len(tr.pieces) - 1
	back := tr.pieces[last]
	tr.pieces[last] = back.WithRange(timerange.New(back.Range().Begin, r.End))
	return nil
}

// Gaps returns the largest position jump (mm) and direction jump (norm of
// the unit-vector difference) found across piece joins.
func (tr *Trajectory[P]) Gaps() (position, direction float64) {
	for i := 1; i < len(tr.pieces); i++ {
		prev, next := tr.pieces[i-1], tr.pieces[i]
		t := next.Range().Begin
		position = math.Max(position, r3.Norm(r3.Sub(prev.Position(t), next.Position(t))))
		direction = math.Max(direction, r3.Norm(r3.Sub(prev.Direction(t), next.Direction(t))))
	}
	return position, direction
}

func (tr *Trajectory[P]) String() string {
	return fmt.Sprintf("trajectory %v with %d pieces", tr.Range(), len(tr.pieces))
}
