package ore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"ore-autominer/internal/solana"
)

const discriminatorLen = 8

var ErrShortAccount = errors.New("account data too short")

// Board points at the live round.
type Board struct {
	RoundID   uint64
	StartSlot uint64
	EndSlot   uint64
}

// Started reports whether the round has a scheduled end.
func (b Board) Started() bool {
	return b.EndSlot != math.MaxUint64
}

// SlotsRemaining is zero once current has reached the end slot.
func (b Board) SlotsRemaining(current uint64) uint64 {
	if !b.Started() || current >= b.EndSlot {
		return 0
	}
	return b.EndSlot - current
}

type Round struct {
	ID             uint64
	Deployed       [NumSquares]uint64
	SlotHash       [32]byte
	Count          [NumSquares]uint64
	ExpiresAt      uint64
	Motherlode     uint64
	RentPayer      solana.PublicKey
	TopMiner       solana.PublicKey
	TopMinerReward uint64
	TotalDeployed  uint64
	TotalVaulted   uint64
	TotalWinnings  uint64
}

type Miner struct {
	Authority          solana.PublicKey
	Deployed           [NumSquares]uint64
	Cumulative         [NumSquares]uint64
	CheckpointFee      uint64
	CheckpointID       uint64
	LastClaimOREAt     int64
	LastClaimSOLAt     int64
	RewardsFactor      [16]byte
	RewardsSOL         uint64
	RewardsORE         uint64
	RefinedORE         uint64
	RoundID            uint64
	LifetimeRewardsSOL uint64
	LifetimeRewardsORE uint64
}

// NeedsCheckpoint reports whether the miner must checkpoint its last round
// before deploying into boardRound.
func (m Miner) NeedsCheckpoint(boardRound uint64) bool {
	return m.CheckpointID != m.RoundID || (m.RoundID > 0 && m.RoundID < boardRound)
}

type reader struct {
	buf []byte
	off int
	err error
}

func newReader(data []byte, want int) (*reader, error) {
	if len(data) < discriminatorLen+want {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrShortAccount, len(data), discriminatorLen+want)
	}
	return &reader{buf: data, off: discriminatorLen}, nil
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) bytes(dst []byte) {
	copy(dst, r.buf[r.off:r.off+len(dst)])
	r.off += len(dst)
}

func (r *reader) squares(dst *[NumSquares]uint64) {
	for i := range dst {
		dst[i] = r.u64()
	}
}

const (
	boardSize = 3 * 8
	roundSize = 8 + 25*8 + 32 + 25*8 + 8 + 8 + 32 + 32 + 8 + 8 + 8 + 8
	minerSize = 32 + 25*8 + 25*8 + 8 + 8 + 8 + 8 + 16 + 8*7
)

func DecodeBoard(data []byte) (Board, error) {
	r, err := newReader(data, boardSize)
	if err != nil {
		return Board{}, err
	}
	return Board{RoundID: r.u64(), StartSlot: r.u64(), EndSlot: r.u64()}, nil
}

func DecodeRound(data []byte) (Round, error) {
	r, err := newReader(data, roundSize)
	if err != nil {
		return Round{}, err
	}
	var out Round
	out.ID = r.u64()
	r.squares(&out.Deployed)
	r.bytes(out.SlotHash[:])
	r.squares(&out.Count)
	out.ExpiresAt = r.u64()
	out.Motherlode = r.u64()
	r.bytes(out.RentPayer[:])
	r.bytes(out.TopMiner[:])
	out.TopMinerReward = r.u64()
	out.TotalDeployed = r.u64()
	out.TotalVaulted = r.u64()
	out.TotalWinnings = r.u64()
	return out, nil
}

func DecodeMiner(data []byte) (Miner, error) {
	r, err := newReader(data, minerSize)
	if err != nil {
		return Miner{}, err
	}
	var out Miner
	r.bytes(out.Authority[:])
	r.squares(&out.Deployed)
	r.squares(&out.Cumulative)
	out.CheckpointFee = r.u64()
	out.CheckpointID = r.u64()
	out.LastClaimOREAt = r.i64()
	out.LastClaimSOLAt = r.i64()
	r.bytes(out.RewardsFactor[:])
	out.RewardsSOL = r.u64()
	out.RewardsORE = r.u64()
	out.RefinedORE = r.u64()
	out.RoundID = r.u64()
	out.LifetimeRewardsSOL = r.u64()
	out.LifetimeRewardsORE = r.u64()
	return out, nil
}

// WinningSquare derives the winning square from the revealed slot hash. ok is
// false while the hash is unset.
func (r Round) WinningSquare() (square int, ok bool) {
	var zero, unset [32]byte
	for i := range unset {
		unset[i] = 0xff
	}
	if r.SlotHash == zero || r.SlotHash == unset {
		return 0, false
	}
	var x uint64
	for i := 0; i < 4; i++ {
		x ^= binary.LittleEndian.Uint64(r.SlotHash[i*8:])
	}
	return int(x % NumSquares), true
}

// Reward is what a stake of amount on square earns if square wins: the stake
// back plus a pro-rata share of every other square's deposits.
func (r Round) Reward(square int, amount uint64) uint64 {
	if square < 0 || square >= NumSquares || amount == 0 {
		return 0
	}
	onSquare := r.Deployed[square]
	if onSquare == 0 {
		return amount
	}
	if amount > onSquare {
		amount = onSquare
	}
	var losers uint64
	for i, d := range r.Deployed {
		if i != square {
			losers += d
		}
	}
	hi, lo := bits.Mul64(losers, amount)
	share, _ := bits.Div64(hi, lo, onSquare)
	return amount + share
}
