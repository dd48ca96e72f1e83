// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package block defines the canonical data types of the consensus core:
// hashes, outpoints, transactions, headers and blocks, together with
// their wire serialization, hashing and Merkle-root logic.
package block

import (
	"bytes"
	"encoding/hex"
)

// Protocol-critical constants (dusk-blockchain/pkg/config/consts.go groups
// these the same way; kept here since block validity depends on them).
const (
	// DustThreshold is the minimum value, in satoshi, a non-coinbase output may carry.
	DustThreshold = 546

	// CoinbaseMaturity is the number of confirmations a coinbase output needs
	// before it becomes spendable.
	CoinbaseMaturity = 100

	// MaxTimestampDrift is how far into the future a header timestamp may sit.
	MaxTimestampDrift = 7200 // seconds

	// HalvingInterval is the number of blocks between subsidy halvings.
	HalvingInterval = 210000

	// InitialBlockReward is the genesis-era block subsidy, in satoshi.
	InitialBlockReward = 50 * 100000000

	// TargetBlockTime is the desired average seconds between blocks.
	TargetBlockTime = 600

	// DifficultyAdjustmentInterval is the retarget period, in blocks.
	DifficultyAdjustmentInterval = 2016

	// MinBlockInterval is the minimum time a single validator must wait
	// between two produced PoS blocks.
	MinBlockInterval = 30 // seconds

	// MaxBlockSize is the maximum serialized size of a block, in bytes.
	MaxBlockSize = 4000000

	// MaxBlockWeight bounds base_size*3 + total_size (§3's weight formula).
	// It shares MaxBlockSize's value since this core grants no separate
	// witness discount beyond the multiplier itself.
	MaxBlockWeight = 4000000

	// MaxTransactionSize is the maximum serialized size of a transaction, in bytes.
	MaxTransactionSize = 100000

	// HeaderSize is the exact wire size of a BlockHeader, excluding Height.
	HeaderSize = 80
)

// HashSize is the length, in bytes, of a Hash256.
const HashSize = 32

// Hash256 is a 32-byte double-SHA-256 digest. It compares lexicographically,
// big-endian, and is displayed with byte order reversed by convention.
type Hash256 [HashSize]byte

// ZeroHash is the all-zero Hash256.
var ZeroHash Hash256

// String renders the hash byte-reversed, the historical display convention.
func (h Hash256) String() string {
	rev := make([]byte, HashSize)
	for i := 0; i < HashSize; i++ {
		rev[i] = h[HashSize-1-i]
	}
	return hex.EncodeToString(rev)
}

// IsZero reports whether the hash is all zero bytes.
func (h Hash256) IsZero() bool {
	return h == ZeroHash
}

// Cmp compares two hashes as big-endian 256-bit integers.
func (h Hash256) Cmp(other Hash256) int {
	return bytes.Compare(h[:], other[:])
}

// NullIndex marks the input index of a null OutPoint (coinbase input).
const NullIndex = 0xFFFFFFFF

// OutPoint uniquely identifies a transaction output.
type OutPoint struct {
	TxHash Hash256
	Index  uint32
}

// NullOutPoint returns the outpoint used by coinbase inputs.
func NullOutPoint() OutPoint {
	return OutPoint{TxHash: ZeroHash, Index: NullIndex}
}

// IsNull reports whether this is the coinbase-marking null outpoint.
func (o OutPoint) IsNull() bool {
	return o.TxHash.IsZero() && o.Index == NullIndex
}

// TxInput spends a previous output, or (for coinbase) carries arbitrary data.
type TxInput struct {
	Prev            OutPoint
	UnlockingScript []byte
	Sequence        uint32
}

// DefaultSequence is the value TxInput.Sequence takes unless overridden.
const DefaultSequence = 0xFFFFFFFF

// NewInput builds a TxInput with the conventional default sequence.
func NewInput(prev OutPoint, unlockingScript []byte) TxInput {
	return TxInput{Prev: prev, UnlockingScript: unlockingScript, Sequence: DefaultSequence}
}

// TxOutput pays a value to a locking script.
type TxOutput struct {
	Value         uint64
	LockingScript []byte
}

// TxWitness is the ordered stack of byte strings satisfying one input's
// witness program. An empty TxWitness means the input carries no witness data.
type TxWitness [][]byte

// Transaction is the canonical, memoizing transaction type.
//
// Hash caches are invalidated by any of the mutator methods; callers who
// mutate the Inputs/Outputs/Witnesses slices directly must call Touch().
type Transaction struct {
	Version  uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	Witnesses []TxWitness
	Locktime uint32

	txid  *Hash256
	wtxid *Hash256
}

// Touch invalidates the memoized txid/wtxid, forcing recomputation on next access.
func (tx *Transaction) Touch() {
	tx.txid = nil
	tx.wtxid = nil
}

// AddInput appends an input and invalidates cached hashes.
func (tx *Transaction) AddInput(in TxInput) {
	tx.Inputs = append(tx.Inputs, in)
	tx.Touch()
}

// AddOutput appends an output and invalidates cached hashes.
func (tx *Transaction) AddOutput(out TxOutput) {
	tx.Outputs = append(tx.Outputs, out)
	tx.Touch()
}

// IsCoinbase reports whether tx has exactly one input with a null outpoint.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].Prev.IsNull()
}

// HasWitness reports whether any input carries witness data.
func (tx *Transaction) HasWitness() bool {
	for _, w := range tx.Witnesses {
		if len(w) > 0 {
			return true
		}
	}
	return false
}

// OutputValue sums the transaction's output values. It returns an error
// if the sum overflows a u64.
func (tx *Transaction) OutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		next := total + out.Value
		if next < total {
			return 0, ErrValueOverflow
		}
		total = next
	}
	return total, nil
}

// HasDuplicateInputs reports whether any outpoint is spent twice by tx.
func (tx *Transaction) HasDuplicateInputs() bool {
	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, ok := seen[in.Prev]; ok {
			return true
		}
		seen[in.Prev] = struct{}{}
	}
	return false
}

// TxID returns the memoized legacy (no-witness) transaction hash, computing
// and caching it on first use.
func (tx *Transaction) TxID() (Hash256, error) {
	if tx.txid != nil {
		return *tx.txid, nil
	}
	buf := new(bytes.Buffer)
	if err := marshalTxLegacy(buf, tx); err != nil {
		return Hash256{}, err
	}
	h := DoubleSHA256(buf.Bytes())
	tx.txid = &h
	return h, nil
}

// WTxID returns the memoized witness transaction hash. It equals TxID when
// the transaction carries no witness data.
func (tx *Transaction) WTxID() (Hash256, error) {
	if !tx.HasWitness() {
		return tx.TxID()
	}
	if tx.wtxid != nil {
		return *tx.wtxid, nil
	}
	buf := new(bytes.Buffer)
	if err := marshalTxWitness(buf, tx); err != nil {
		return Hash256{}, err
	}
	h := DoubleSHA256(buf.Bytes())
	tx.wtxid = &h
	return h, nil
}

// BlockHeader is the 80-byte-serializable portion of a Block, plus the
// application-level Height index kept outside the canonical wire form.
type BlockHeader struct {
	Version          uint32
	PrevBlockHash    Hash256
	MerkleRoot       Hash256
	Timestamp        uint32
	DifficultyTarget uint32
	Nonce            uint32

	// Height is a local index, never part of the 80-byte serialization.
	Height uint32
}

// Block is a header plus its ordered transactions.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// Hash returns the double-SHA-256 hash of the block's 80-byte header.
func (b *Block) Hash() (Hash256, error) {
	buf := new(bytes.Buffer)
	if err := MarshalHeader(buf, &b.Header); err != nil {
		return Hash256{}, err
	}
	return DoubleSHA256(buf.Bytes()), nil
}

// Coinbase returns the block's coinbase transaction, or nil if absent.
func (b *Block) Coinbase() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return &b.Transactions[0]
}
