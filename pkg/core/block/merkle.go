// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block

// MerkleRoot computes the double-SHA-256 Merkle root over the given txids,
// duplicating the final element of an odd-length level, the historical
// convention this core standardizes on for both leaf pairing and the root
// itself (see DESIGN.md's resolution of the Merkle hash open question).
func MerkleRoot(txids []Hash256) Hash256 {
	if len(txids) == 0 {
		return ZeroHash
	}
	level := make([]Hash256, len(txids))
	copy(level, txids)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash256, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right Hash256) Hash256 {
	buf := make([]byte, 0, HashSize*2)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return DoubleSHA256(buf)
}

// MerkleProof is an authentication path from a leaf to the Merkle root.
type MerkleProof struct {
	Index   int
	Leaf    Hash256
	Path    []Hash256
	// LeftMask has bit i set when Path[i] is the LEFT sibling.
	LeftMask []bool
}

// BuildMerkleProof constructs the authentication path for the leaf at index.
func BuildMerkleProof(txids []Hash256, index int) (*MerkleProof, error) {
	if index < 0 || index >= len(txids) {
		return nil, NewValidationError(KindMalformed, "merkle proof index out of range")
	}
	level := make([]Hash256, len(txids))
	copy(level, txids)

	proof := &MerkleProof{Index: index, Leaf: txids[index]}
	idx := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		siblingIdx := idx ^ 1
		proof.Path = append(proof.Path, level[siblingIdx])
		proof.LeftMask = append(proof.LeftMask, siblingIdx < idx)

		next := make([]Hash256, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}
	return proof, nil
}

// VerifyMerkleProof recomputes the root from proof and compares it to root.
func VerifyMerkleProof(proof *MerkleProof, root Hash256) bool {
	current := proof.Leaf
	for i, sibling := range proof.Path {
		if proof.LeftMask[i] {
			current = hashPair(sibling, current)
		} else {
			current = hashPair(current, sibling)
		}
	}
	return current == root
}

// CalculateRoot recomputes the Merkle root over b's transactions' txids.
func (b *Block) CalculateRoot() (Hash256, error) {
	if len(b.Transactions) == 0 {
		return ZeroHash, nil
	}
	ids := make([]Hash256, len(b.Transactions))
	for i := range b.Transactions {
		id, err := b.Transactions[i].TxID()
		if err != nil {
			return Hash256{}, err
		}
		ids[i] = id
	}
	return MerkleRoot(ids), nil
}
