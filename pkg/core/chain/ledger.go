// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"math/big"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

// Ledger is the ingestion-facing surface of a consensus Engine, kept as a
// narrow interface so callers (a future network layer, test harnesses) can
// depend on behavior rather than the concrete Engine type.
type Ledger interface {
	// AcceptBlock classifies, validates, applies and commits b, or routes
	// it to fork resolution when it does not extend the current tip.
	AcceptBlock(b *block.Block) error

	// Tip returns the current best block hash and height.
	Tip() (block.Hash256, uint32)

	// CumulativeWork returns the accumulated proof-of-work of the best chain.
	CumulativeWork() *big.Int
}
