// internal/position/store.go
package position

import (
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	// ErrPositionAlreadyOpen rejects an open for a mint that already has a
	// record, closed or not. A closed position keeps blocking re-entry:
	// only the monitored wallet's first buy of a token is ever mirrored.
	ErrPositionAlreadyOpen = errors.New("position already open for mint")
	// ErrNoSuchPosition rejects exit transitions for mints without an
	// open or partially exited position.
	ErrNoSuchPosition = errors.New("no open position for mint")
	// ErrTierAlreadyApplied rejects a replayed take-profit tier.
	ErrTierAlreadyApplied = errors.New("take-profit tier already applied")
)

// Status of a mirrored position.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusPartiallyExited
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartiallyExited:
		return "partially_exited"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Position is the per-mint record of what the operator's mirror currently
// holds. All mutation goes through Store.Apply; callers only ever see copies.
type Position struct {
	TokenMint    solana.PublicKey
	EntryRatio   float64 // lamports per token base unit at first buy
	EntryQty     uint64  // token base units bought at entry, never mutated
	Quantity     uint64  // token base units currently held
	CommittedSol uint64  // lamports still committed to the open remainder
	AppliedTiers []int   // tier indexes that already fired, in firing order
	Status       Status
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

// TierApplied reports whether a take-profit tier has already fired.
func (p *Position) TierApplied(index int) bool {
	for _, t := range p.AppliedTiers {
		if t == index {
			return true
		}
	}
	return false
}

func (p *Position) clone() Position {
	c := *p
	c.AppliedTiers = append([]int(nil), p.AppliedTiers...)
	return c
}

// TransitionKind discriminates StateTransition variants.
type TransitionKind uint8

const (
	TransitionOpen TransitionKind = iota + 1
	TransitionRecordExit
	TransitionClose
)

// StateTransition is a proposed atomic mutation of one position. The engine
// proposes; the store commits or rejects against current state, which is the
// whole optimistic-concurrency contract.
type StateTransition struct {
	Kind       TransitionKind
	EntrySol   uint64
	EntryQty   uint64
	QtyReduced uint64
	TierIndex  int // -1 when the exit is not tier-driven
}

// OpenPosition proposes creating a position from the observed entry swap.
func OpenPosition(entrySol, entryQty uint64) StateTransition {
	return StateTransition{Kind: TransitionOpen, EntrySol: entrySol, EntryQty: entryQty, TierIndex: -1}
}

// RecordExit proposes reducing the position by a quantity, marking the given
// take-profit tier as fired.
func RecordExit(qtyReduced uint64, tierIndex int) StateTransition {
	return StateTransition{Kind: TransitionRecordExit, QtyReduced: qtyReduced, TierIndex: tierIndex}
}

// Close proposes flattening the position entirely, regardless of tier state.
func Close() StateTransition {
	return StateTransition{Kind: TransitionClose, TierIndex: -1}
}

// entry owns one mint's record. The entry mutex is the only lock held during
// a transition, so transitions on different mints never contend.
type entry struct {
	mu  sync.Mutex
	pos *Position
}

// Store is the concurrency-safe table of per-mint positions and the single
// source of truth for what the mirror holds.
type Store struct {
	mu      sync.RWMutex
	entries map[solana.PublicKey]*entry
	logger  *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		entries: make(map[solana.PublicKey]*entry),
		logger:  logger.Named("position_store"),
	}
}

func (s *Store) lookup(mint solana.PublicKey) *entry {
	s.mu.RLock()
	e := s.entries[mint]
	s.mu.RUnlock()
	return e
}

func (s *Store) lookupOrCreate(mint solana.PublicKey) *entry {
	if e := s.lookup(mint); e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entries[mint]; e != nil {
		return e
	}
	e := &entry{}
	s.entries[mint] = e
	return e
}

// Get returns a snapshot of the open or partially exited position for a mint.
// Closed records are not returned; use Traded to test first-buy eligibility.
func (s *Store) Get(mint solana.PublicKey) (Position, bool) {
	e := s.lookup(mint)
	if e == nil {
		return Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos == nil || e.pos.Status == StatusClosed {
		return Position{}, false
	}
	return e.pos.clone(), true
}

// Traded reports whether the mint has ever had a position, closed included.
func (s *Store) Traded(mint solana.PublicKey) bool {
	e := s.lookup(mint)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos != nil
}

// Open returns snapshots of every position that still holds quantity.
func (s *Store) Open() []Position {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []Position
	for _, e := range entries {
		e.mu.Lock()
		if e.pos != nil && e.pos.Status != StatusClosed {
			out = append(out, e.pos.clone())
		}
		e.mu.Unlock()
	}
	return out
}

// Apply commits one transition atomically for the mint: the read-check-write
// never interleaves with another Apply on the same mint. On rejection the
// stored position is untouched and the caller must discard whatever decision
// produced the transition.
func (s *Store) Apply(mint solana.PublicKey, tr StateTransition) (Position, error) {
	e := s.lookupOrCreate(mint)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()

	switch tr.Kind {
	case TransitionOpen:
		if e.pos != nil {
			return Position{}, ErrPositionAlreadyOpen
		}
		var ratio float64
		if tr.EntryQty > 0 {
			ratio = float64(tr.EntrySol) / float64(tr.EntryQty)
		}
		e.pos = &Position{
			TokenMint:    mint,
			EntryRatio:   ratio,
			EntryQty:     tr.EntryQty,
			Quantity:     tr.EntryQty,
			CommittedSol: tr.EntrySol,
			Status:       StatusOpen,
			OpenedAt:     now,
			UpdatedAt:    now,
		}
		s.logger.Info("position opened",
			zap.Stringer("mint", mint),
			zap.Uint64("quantity", tr.EntryQty),
			zap.Uint64("committed_sol", tr.EntrySol))
		return e.pos.clone(), nil

	case TransitionRecordExit:
		if e.pos == nil || e.pos.Status == StatusClosed {
			return Position{}, ErrNoSuchPosition
		}
		if tr.TierIndex >= 0 && e.pos.TierApplied(tr.TierIndex) {
			return Position{}, ErrTierAlreadyApplied
		}
		qty := tr.QtyReduced
		if qty > e.pos.Quantity {
			qty = e.pos.Quantity
		}
		// Release committed SOL in proportion to the quantity sold.
		if e.pos.Quantity > 0 {
			released := float64(e.pos.CommittedSol) * float64(qty) / float64(e.pos.Quantity)
			e.pos.CommittedSol -= uint64(released)
		}
		e.pos.Quantity -= qty
		if tr.TierIndex >= 0 {
			e.pos.AppliedTiers = append(e.pos.AppliedTiers, tr.TierIndex)
		}
		if e.pos.Quantity == 0 {
			e.pos.Status = StatusClosed
			e.pos.CommittedSol = 0
		} else {
			e.pos.Status = StatusPartiallyExited
		}
		e.pos.UpdatedAt = now
		s.logger.Info("position reduced",
			zap.Stringer("mint", mint),
			zap.Uint64("quantity_sold", qty),
			zap.Uint64("remaining", e.pos.Quantity),
			zap.Int("tier", tr.TierIndex),
			zap.Stringer("status", e.pos.Status))
		return e.pos.clone(), nil

	case TransitionClose:
		if e.pos == nil || e.pos.Status == StatusClosed {
			return Position{}, ErrNoSuchPosition
		}
		e.pos.Quantity = 0
		e.pos.CommittedSol = 0
		e.pos.Status = StatusClosed
		e.pos.UpdatedAt = now
		s.logger.Info("position closed", zap.Stringer("mint", mint))
		return e.pos.clone(), nil

	default:
		return Position{}, errors.New("unknown state transition")
	}
}
