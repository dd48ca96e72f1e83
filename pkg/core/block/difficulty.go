// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block

import "math/big"

// CompactToTarget expands a compact ("nBits") representation into a full
// 256-bit target. The encoding follows the classic three-byte-mantissa,
// one-byte-exponent scheme: the low 23 bits are the mantissa, the high
// byte is the byte-length of the target, and bit 0x00800000 marks the
// mantissa negative (rejected here, since a negative target is invalid).
func CompactToTarget(bits uint32) (*big.Int, error) {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff

	if bits&0x00800000 != 0 {
		return nil, NewValidationError(KindDifficultyInvalid, "compact target has negative sign bit")
	}
	if mantissa != 0 && exponent > 32 {
		return nil, NewValidationError(KindDifficultyInvalid, "compact target exponent too large")
	}

	target := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		shift := uint((3 - exponent) * 8)
		target.Rsh(target, shift)
	} else {
		shift := uint((exponent - 3) * 8)
		target.Lsh(target, shift)
	}
	return target, nil
}

// TargetToCompact reduces a full target back to its compact representation.
func TargetToCompact(target *big.Int) uint32 {
	if target.Sign() == 0 {
		return 0
	}
	bytesLen := (target.BitLen() + 7) / 8
	var mantissa uint32
	if bytesLen <= 3 {
		mantissa = uint32(target.Uint64()) << uint((3-bytesLen)*8)
	} else {
		shifted := new(big.Int).Rsh(target, uint((bytesLen-3)*8))
		mantissa = uint32(shifted.Uint64())
	}
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		bytesLen++
	}
	return mantissa | uint32(bytesLen)<<24
}

// maxTarget is the loosest allowed difficulty target (compact 0x1d00ffff
// class, the conventional genesis-era ceiling).
var maxTarget, _ = CompactToTarget(0x1d00ffff)

// MaxTarget returns the loosest allowed proof-of-work target.
func MaxTarget() *big.Int {
	return new(big.Int).Set(maxTarget)
}

// TargetToDifficulty returns MaxTarget / target, the conventional
// "difficulty" figure (1.0 at minimum difficulty).
func TargetToDifficulty(target *big.Int) *big.Rat {
	if target.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(maxTarget, target)
}

// blockWorkNumerator is 2^256, the numerator used to convert a target into
// the expected number of hashes needed to satisfy it.
var blockWorkNumerator = new(big.Int).Lsh(big.NewInt(1), 256)

// CalculateWork returns the expected work a block satisfying target
// represents, computed as floor(2^256 / (target + 1)) to avoid division by
// zero at the maximum possible target.
func CalculateWork(target *big.Int) *big.Int {
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(blockWorkNumerator, denom)
}

// HeaderMeetsTarget reports whether hash, interpreted as a big-endian
// 256-bit integer, is numerically at or below target. Comparison is done
// over the full 256 bits via math/big, not a truncated 64-bit prefix.
func HeaderMeetsTarget(hash Hash256, target *big.Int) bool {
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(target) <= 0
}
