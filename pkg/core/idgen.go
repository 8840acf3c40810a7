package core

import "sync/atomic"

// IDGen hands out the monotonic identities the matching core depends on.
// SortIDs order resting orders within a price level, match IDs group the
// two (or three) sides of one fill. Both must be strictly increasing across
// every engine sharing liquidity, so a reference pair shares one IDGen.
type IDGen interface {
	NextSortID() uint64
	NextMatchID() uint64
}

// SeqIDGen is the default IDGen, two atomic counters.
type SeqIDGen struct {
	sortID  atomic.Uint64
	matchID atomic.Uint64
}

// NewSeqIDGen creates a SeqIDGen starting above the given watermarks,
// typically the highest ids seen during recovery.
func NewSeqIDGen(sortID, matchID uint64) *SeqIDGen {
	g := &SeqIDGen{}
	g.sortID.Store(sortID)
	g.matchID.Store(matchID)
	return g
}

func (g *SeqIDGen) NextSortID() uint64 { return g.sortID.Add(1) }

func (g *SeqIDGen) NextMatchID() uint64 { return g.matchID.Add(1) }
