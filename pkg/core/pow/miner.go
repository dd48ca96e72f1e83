// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package pow implements the proof-of-work mining loop: single-worker and
// parallel nonce search over a fixed header template.
package pow

import (
	"bytes"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

var logger = log.WithField("prefix", "pow")

// Result reports the outcome of a mining attempt.
type Result struct {
	Success    bool
	Nonce      uint32
	Hash       block.Hash256
	Iterations uint64
	Elapsed    time.Duration
}

// Miner runs the mining loop over a fixed header template, supporting
// cooperative cancellation shared across worker goroutines.
type Miner struct {
	stop uint32
}

// New builds a ready-to-use Miner.
func New() *Miner {
	return &Miner{}
}

// StopMining requests every in-flight Mine call on this Miner to return as
// soon as its workers observe the flag.
func (m *Miner) StopMining() {
	atomic.StoreUint32(&m.stop, 1)
}

func (m *Miner) reset() {
	atomic.StoreUint32(&m.stop, 0)
}

func (m *Miner) stopped() bool {
	return atomic.LoadUint32(&m.stop) == 1
}

// Mine searches for a nonce satisfying target, starting from headerTemplate,
// using workerCount parallel goroutines each covering a disjoint,
// contiguous slice of the full [0, 2^32) nonce space; a workerCount below 1
// uses GOMAXPROCS workers. maxIterations is split across the workers, each
// attempting at most maxIterations/workerCount+1 hashes, so the combined
// total can exceed maxIterations by up to workerCount; zero means unbounded
// (search the whole space once).
func (m *Miner) Mine(headerTemplate block.BlockHeader, target *big.Int, maxIterations uint64, workerCount int) (Result, error) {
	if workerCount < 1 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	m.reset()
	start := time.Now()

	const spaceSize = uint64(1) << 32
	perWorker := spaceSize / uint64(workerCount)

	var (
		iterations uint64
		winner     atomic.Value // Result
		found      uint32
		wg         sync.WaitGroup
	)

	for w := 0; w < workerCount; w++ {
		lo := uint64(w) * perWorker
		hi := lo + perWorker
		if w == workerCount-1 {
			hi = spaceSize
		}
		wg.Add(1)
		go func(lo, hi uint64) {
			defer wg.Done()
			m.mineRange(headerTemplate, target, lo, hi, maxIterations, workerCount, &iterations, &found, &winner)
		}(lo, hi)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if found == 1 {
		res := winner.Load().(Result)
		res.Iterations = atomic.LoadUint64(&iterations)
		res.Elapsed = elapsed
		logger.WithFields(log.Fields{"nonce": res.Nonce, "iterations": res.Iterations}).Debug("block mined")
		return res, nil
	}
	logger.WithField("iterations", atomic.LoadUint64(&iterations)).Debug("mining exhausted nonce space without success")
	return Result{Success: false, Iterations: atomic.LoadUint64(&iterations), Elapsed: elapsed}, nil
}

func (m *Miner) mineRange(headerTemplate block.BlockHeader, target *big.Int, lo, hi uint64, maxIterations uint64, workerCount int, iterations *uint64, found *uint32, winner *atomic.Value) {
	header := headerTemplate
	prefixBuf := new(bytes.Buffer)
	_ = block.MarshalHeader(prefixBuf, &header) // establishes the byte layout; nonce bytes overwritten per candidate below.
	prefix := prefixBuf.Bytes()
	nonceOffset := len(prefix) - 4

	perWorkerBudget := maxIterations
	if perWorkerBudget > 0 {
		perWorkerBudget = perWorkerBudget/uint64(workerCount) + 1
	}

	var local uint64
	for nonce := lo; nonce < hi; nonce++ {
		if m.stopped() || atomic.LoadUint32(found) == 1 {
			atomic.AddUint64(iterations, local)
			return
		}
		if perWorkerBudget > 0 && local >= perWorkerBudget {
			atomic.AddUint64(iterations, local)
			return
		}

		header.Nonce = uint32(nonce)
		candidate := make([]byte, len(prefix))
		copy(candidate, prefix)
		candidate[nonceOffset] = byte(nonce)
		candidate[nonceOffset+1] = byte(nonce >> 8)
		candidate[nonceOffset+2] = byte(nonce >> 16)
		candidate[nonceOffset+3] = byte(nonce >> 24)

		hash := block.DoubleSHA256(candidate)
		local++

		if block.HeaderMeetsTarget(hash, target) {
			if atomic.CompareAndSwapUint32(found, 0, 1) {
				winner.Store(Result{Success: true, Nonce: uint32(nonce), Hash: hash})
				m.StopMining()
			}
			atomic.AddUint64(iterations, local)
			return
		}
	}
	atomic.AddUint64(iterations, local)
}
