// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
)

// DoubleSHA256 hashes data with SHA-256 twice, the digest used throughout
// the consensus core for txids, header hashes and Merkle nodes.
func DoubleSHA256(data []byte) Hash256 {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return Hash256(second)
}

// WriteUint32LE writes v as four little-endian bytes, mirroring the
// database/utils encoding helpers of the teacher codebase.
func WriteUint32LE(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint32LE reads four little-endian bytes into a uint32.
func ReadUint32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteUint64LE writes v as eight little-endian bytes.
func WriteUint64LE(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint64LE reads eight little-endian bytes into a uint64.
func ReadUint64LE(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// WriteVarInt writes v using the classic compact-size varint encoding.
func WriteVarInt(w io.Writer, v uint64) error {
	switch {
	case v < 0xfd:
		_, err := w.Write([]byte{byte(v)})
		return err
	case v <= 0xffff:
		if _, err := w.Write([]byte{0xfd}); err != nil {
			return err
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		_, err := w.Write(b[:])
		return err
	case v <= 0xffffffff:
		if _, err := w.Write([]byte{0xfe}); err != nil {
			return err
		}
		return WriteUint32LE(w, uint32(v))
	default:
		if _, err := w.Write([]byte{0xff}); err != nil {
			return err
		}
		return WriteUint64LE(w, v)
	}
}

// ReadVarInt reads a compact-size varint.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xfd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b[:])), nil
	case 0xfe:
		v, err := ReadUint32LE(r)
		return uint64(v), err
	case 0xff:
		return ReadUint64LE(r)
	default:
		return uint64(prefix[0]), nil
	}
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader, max uint64) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, NewValidationError(KindMalformed, "varbytes length exceeds limit")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func marshalOutPoint(w io.Writer, o OutPoint) error {
	if _, err := w.Write(o.TxHash[:]); err != nil {
		return err
	}
	return WriteUint32LE(w, o.Index)
}

func unmarshalOutPoint(r io.Reader) (OutPoint, error) {
	var o OutPoint
	if _, err := io.ReadFull(r, o.TxHash[:]); err != nil {
		return o, err
	}
	idx, err := ReadUint32LE(r)
	if err != nil {
		return o, err
	}
	o.Index = idx
	return o, nil
}

func marshalInputLegacy(w io.Writer, in TxInput) error {
	if err := marshalOutPoint(w, in.Prev); err != nil {
		return err
	}
	if err := writeVarBytes(w, in.UnlockingScript); err != nil {
		return err
	}
	return WriteUint32LE(w, in.Sequence)
}

func unmarshalInputLegacy(r io.Reader) (TxInput, error) {
	var in TxInput
	prev, err := unmarshalOutPoint(r)
	if err != nil {
		return in, err
	}
	script, err := readVarBytes(r, MaxTransactionSize)
	if err != nil {
		return in, err
	}
	seq, err := ReadUint32LE(r)
	if err != nil {
		return in, err
	}
	in.Prev = prev
	in.UnlockingScript = script
	in.Sequence = seq
	return in, nil
}

func marshalOutput(w io.Writer, out TxOutput) error {
	if err := WriteUint64LE(w, out.Value); err != nil {
		return err
	}
	return writeVarBytes(w, out.LockingScript)
}

func unmarshalOutput(r io.Reader) (TxOutput, error) {
	var out TxOutput
	v, err := ReadUint64LE(r)
	if err != nil {
		return out, err
	}
	script, err := readVarBytes(r, MaxTransactionSize)
	if err != nil {
		return out, err
	}
	out.Value = v
	out.LockingScript = script
	return out, nil
}

// marshalTxLegacy writes the witness-stripped transaction form used to
// compute TxID, matching segwit-style txid/wtxid separation.
func marshalTxLegacy(w io.Writer, tx *Transaction) error {
	if err := WriteUint32LE(w, tx.Version); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if err := marshalInputLegacy(w, in); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for _, out := range tx.Outputs {
		if err := marshalOutput(w, out); err != nil {
			return err
		}
	}
	return WriteUint32LE(w, tx.Locktime)
}

// marshalTxWitness writes the full transaction including per-input witness
// stacks, used to compute WTxID. The wire form inserts a marker/flag byte
// pair (0x00, 0x01) right after the version field, the segwit-style
// discriminator between legacy and witness-carrying encodings.
func marshalTxWitness(w io.Writer, tx *Transaction) error {
	if err := WriteUint32LE(w, tx.Version); err != nil {
		return err
	}
	if _, err := w.Write([]byte{0x00, 0x01}); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if err := marshalInputLegacy(w, in); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for _, out := range tx.Outputs {
		if err := marshalOutput(w, out); err != nil {
			return err
		}
	}
	// One witness stack per input, per §6.4; inputs beyond len(tx.Witnesses)
	// (including every witness-less transaction) pad with empty stacks so
	// the reader, which always reads len(Inputs) stacks, stays in sync.
	for i := range tx.Inputs {
		var wit TxWitness
		if i < len(tx.Witnesses) {
			wit = tx.Witnesses[i]
		}
		if err := WriteVarInt(w, uint64(len(wit))); err != nil {
			return err
		}
		for _, item := range wit {
			if err := writeVarBytes(w, item); err != nil {
				return err
			}
		}
	}
	return WriteUint32LE(w, tx.Locktime)
}

// UnmarshalTransaction decodes a transaction in its witness-carrying wire form.
func UnmarshalTransaction(r io.Reader) (*Transaction, error) {
	tx := &Transaction{}
	v, err := ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	tx.Version = v

	var markerFlag [2]byte
	if _, err := io.ReadFull(r, markerFlag[:]); err != nil {
		return nil, err
	}
	if markerFlag[0] != 0x00 || markerFlag[1] != 0x01 {
		return nil, NewValidationError(KindMalformed, "unexpected marker/flag bytes")
	}

	inCount, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	tx.Inputs = make([]TxInput, inCount)
	for i := range tx.Inputs {
		in, err := unmarshalInputLegacy(r)
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = in
	}

	outCount, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]TxOutput, outCount)
	for i := range tx.Outputs {
		out, err := unmarshalOutput(r)
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = out
	}

	// Witness data, when present, is encoded by a trailing marker the
	// caller must know about; this core always serializes full witness
	// form so witnesses are read unconditionally, one stack per input.
	tx.Witnesses = make([]TxWitness, inCount)
	for i := range tx.Witnesses {
		itemCount, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		wit := make(TxWitness, itemCount)
		for j := range wit {
			item, err := readVarBytes(r, MaxTransactionSize)
			if err != nil {
				return nil, err
			}
			wit[j] = item
		}
		tx.Witnesses[i] = wit
	}

	locktime, err := ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	tx.Locktime = locktime
	return tx, nil
}

// MarshalTransaction writes the full witness-carrying wire form.
func MarshalTransaction(w io.Writer, tx *Transaction) error {
	return marshalTxWitness(w, tx)
}

// MarshalHeader writes the canonical 80-byte header form (Height excluded).
func MarshalHeader(w io.Writer, h *BlockHeader) error {
	if err := WriteUint32LE(w, h.Version); err != nil {
		return err
	}
	if _, err := w.Write(h.PrevBlockHash[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.MerkleRoot[:]); err != nil {
		return err
	}
	if err := WriteUint32LE(w, h.Timestamp); err != nil {
		return err
	}
	if err := WriteUint32LE(w, h.DifficultyTarget); err != nil {
		return err
	}
	return WriteUint32LE(w, h.Nonce)
}

// UnmarshalHeader reads the canonical 80-byte header form.
func UnmarshalHeader(r io.Reader) (*BlockHeader, error) {
	h := &BlockHeader{}
	v, err := ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	h.Version = v
	if _, err := io.ReadFull(r, h.PrevBlockHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, h.MerkleRoot[:]); err != nil {
		return nil, err
	}
	ts, err := ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	h.Timestamp = ts
	target, err := ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	h.DifficultyTarget = target
	nonce, err := ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	h.Nonce = nonce
	return h, nil
}

// SerializedSize returns the byte length of the full witness-carrying
// encoding of tx.
func (tx *Transaction) SerializedSize() (int, error) {
	buf := new(bytes.Buffer)
	if err := marshalTxWitness(buf, tx); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// LegacySerializedSize returns the byte length of tx's witness-stripped
// encoding, the "base size" term of the block weight formula (§3).
func (tx *Transaction) LegacySerializedSize() (int, error) {
	buf := new(bytes.Buffer)
	if err := marshalTxLegacy(buf, tx); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// SerializedSize returns the total byte length of the block: header plus
// every transaction in witness-carrying form.
func (b *Block) SerializedSize() (int, error) {
	total := HeaderSize
	for i := range b.Transactions {
		n, err := b.Transactions[i].SerializedSize()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// BaseSize returns the block's witness-stripped size: header plus every
// transaction's legacy encoding.
func (b *Block) BaseSize() (int, error) {
	total := HeaderSize
	for i := range b.Transactions {
		n, err := b.Transactions[i].LegacySerializedSize()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Weight is base_size*3 + total_size, per §3.
func (b *Block) Weight() (int, error) {
	base, err := b.BaseSize()
	if err != nil {
		return 0, err
	}
	total, err := b.SerializedSize()
	if err != nil {
		return 0, err
	}
	return base*3 + total, nil
}
