// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package crypto encapsulates every cryptographic primitive the consensus
// core consumes but does not itself define: hashing, key generation,
// signing, deterministic selection randomness and secure random bytes.
//
// A process-wide signing context exists (Default), but it is constructed
// lazily on first use and never exposed as ambient global state to
// consensus code; callers should thread a *Context explicitly instead.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	mrand "math/rand"
	"sync"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // ripemd160 is required by the wire format, not chosen for new designs.

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

// Hash160Size is the length, in bytes, of a RIPEMD-160 digest.
const Hash160Size = 20

// PrivateKeySize is the length, in bytes, of a raw ECDSA private scalar.
const PrivateKeySize = 32

// PublicKeySize is the length, in bytes, of a compressed public key.
const PublicKeySize = 33

// SignatureSize is the length, in bytes, of a fixed-size (r||s) signature.
const SignatureSize = 64

// Curve is the elliptic curve backing every key in this core. No example
// in the reference corpus vendors a secp256k1 implementation, so this
// core uses the standard library's P-256 curve (see DESIGN.md).
var Curve = elliptic.P256()

// Context is the process's cryptographic collaborator: a thin,
// concurrency-safe wrapper over the primitives in §6.1.
type Context struct{}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Default returns the lazily-constructed, process-wide Context.
func Default() *Context {
	defaultOnce.Do(func() {
		defaultCtx = &Context{}
	})
	return defaultCtx
}

// SHA256 hashes data once.
func (*Context) SHA256(data []byte) block.Hash256 {
	return block.Hash256(sha256.Sum256(data))
}

// DoubleSHA256 hashes data twice, matching the block package's convention.
func (*Context) DoubleSHA256(data []byte) block.Hash256 {
	return block.DoubleSHA256(data)
}

// RIPEMD160 hashes data with RIPEMD-160, returning a 20-byte digest.
func (*Context) RIPEMD160(data []byte) ([Hash160Size]byte, error) {
	var out [Hash160Size]byte
	h := ripemd160.New()
	if _, err := h.Write(data); err != nil {
		return out, err
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

// PrivateKey is a raw ECDSA private scalar over Curve.
type PrivateKey struct {
	inner *ecdsa.PrivateKey
}

// PublicKey is the compressed encoding of an ECDSA public point over Curve.
type PublicKey [PublicKeySize]byte

// GeneratePrivateKey draws a new private key using crypto/rand.
func (*Context) GeneratePrivateKey() (*PrivateKey, error) {
	sk, err := ecdsa.GenerateKey(Curve, rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{inner: sk}, nil
}

// DerivePublicKey returns the compressed public key for sk.
func (*Context) DerivePublicKey(sk *PrivateKey) PublicKey {
	return compress(sk.inner.PublicKey)
}

// IsValidPrivateKey reports whether raw decodes to a scalar in [1, N-1].
func (*Context) IsValidPrivateKey(raw []byte) bool {
	if len(raw) != PrivateKeySize {
		return false
	}
	d := new(big.Int).SetBytes(raw)
	if d.Sign() <= 0 {
		return false
	}
	return d.Cmp(Curve.Params().N) < 0
}

// IsValidPublicKey reports whether raw decompresses to a point on Curve.
func (*Context) IsValidPublicKey(raw []byte) bool {
	if len(raw) != PublicKeySize {
		return false
	}
	var pk PublicKey
	copy(pk[:], raw)
	_, ok := decompress(pk)
	return ok
}

// Sign produces a fixed-size (r||s) ECDSA signature over msgHash.
func (*Context) Sign(msgHash block.Hash256, sk *PrivateKey) ([SignatureSize]byte, error) {
	var sig [SignatureSize]byte
	r, s, err := ecdsa.Sign(rand.Reader, sk.inner, msgHash[:])
	if err != nil {
		return sig, err
	}
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// Verify checks a fixed-size (r||s) ECDSA signature over msgHash.
func (*Context) Verify(msgHash block.Hash256, sig [SignatureSize]byte, pk PublicKey) bool {
	pub, ok := decompress(pk)
	if !ok {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, msgHash[:], r, s)
}

func compress(pub ecdsa.PublicKey) PublicKey {
	var out PublicKey
	if pub.Y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	pub.X.FillBytes(out[1:])
	return out
}

func decompress(pk PublicKey) (*ecdsa.PublicKey, bool) {
	params := Curve.Params()
	x := new(big.Int).SetBytes(pk[1:])
	if x.Cmp(params.P) >= 0 {
		return nil, false
	}
	ySq := new(big.Int).Exp(x, big.NewInt(3), params.P)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	ySq.Sub(ySq, threeX)
	ySq.Add(ySq, params.B)
	ySq.Mod(ySq, params.P)

	y := new(big.Int).ModSqrt(ySq, params.P)
	if y == nil {
		return nil, false
	}
	if (y.Bit(0) == 0) != (pk[0] == 0x02) {
		y.Sub(params.P, y)
	}
	if !Curve.IsOnCurve(x, y) {
		return nil, false
	}
	return &ecdsa.PublicKey{Curve: Curve, X: x, Y: y}, true
}

// RandEntropy draws n secure random bytes from crypto/rand.
func (*Context) RandEntropy(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DeterministicPRNG is a reproducible pseudo-random source seeded from a
// 256-bit hash, used only for validator selection. It implements
// math/rand.Source64 so it can drive a *math/rand.Rand.
type DeterministicPRNG struct {
	state uint64
}

// NewDeterministicPRNG seeds a DeterministicPRNG from the first 8 bytes of
// seed, matching the wire convention of §4.6.
func NewDeterministicPRNG(seed block.Hash256) *DeterministicPRNG {
	s := binary.LittleEndian.Uint64(seed[:8])
	if s == 0 {
		s = 0x9E3779B97F4A7C15 // avoid an all-zero splitmix64 state
	}
	return &DeterministicPRNG{state: s}
}

// Uint64 returns the next pseudo-random value via splitmix64.
func (p *DeterministicPRNG) Uint64() uint64 {
	p.state += 0x9E3779B97F4A7C15
	z := p.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Int63 satisfies math/rand.Source.
func (p *DeterministicPRNG) Int63() int64 {
	return int64(p.Uint64() >> 1)
}

// Seed satisfies math/rand.Source; deterministic PRNGs in this core are
// always constructed via NewDeterministicPRNG, so Seed is a no-op.
func (p *DeterministicPRNG) Seed(int64) {}

// Rand builds a *math/rand.Rand driven by this deterministic source.
func (p *DeterministicPRNG) Rand() *mrand.Rand {
	return mrand.New(p)
}
