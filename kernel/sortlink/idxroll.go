package sortlink

import "math"

const (
	// LogLen is log2 of the number of slots per wheel.
	LogLen = 3
	// Len is the number of slots per wheel.
	Len = 1 << LogLen

	slotMask = Len - 1

	// IndexBits is the width of the slot index in an IdxRoll word (high bits).
	IndexBits = LogLen
	// RollBits is the width of the roll count in an IdxRoll word (low bits).
	RollBits = 32 - IndexBits
	// RollMask selects the roll count of an IdxRoll word.
	RollMask = 1<<RollBits - 1

	// MaxTicks is the largest delay Insert accepts; longer delays are clamped.
	//
	// The bound keeps ticks/Len+1 within RollBits.
	MaxTicks = math.MaxUint32 - Len
)

// IdxRoll packs a slot index (high IndexBits) and a roll count (low RollBits).
//
// For a linked node the roll count is delta-encoded: it is the number of
// extra laps past the node before it in the same slot list.
type IdxRoll uint32

// MakeIdxRoll packs index and roll. Out-of-range values are masked.
func MakeIdxRoll(index, roll uint32) IdxRoll {
	return IdxRoll((index&slotMask)<<RollBits | roll&RollMask)
}

// Index returns the slot index.
func (v IdxRoll) Index() uint32 { return uint32(v) >> RollBits }

// Roll returns the roll count.
func (v IdxRoll) Roll() uint32 { return uint32(v) & RollMask }

// WithRoll returns v with the roll count replaced.
func (v IdxRoll) WithRoll(roll uint32) IdxRoll { return MakeIdxRoll(v.Index(), roll) }

// WithIndex returns v with the slot index replaced.
func (v IdxRoll) WithIndex(index uint32) IdxRoll { return MakeIdxRoll(index, v.Roll()) }
