// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package script treats locking/unlocking scripts as opaque predicates,
// exactly as the consensus core requires: it never inspects script bytes
// beyond what a Verifier chooses to interpret.
package script

import (
	"bytes"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

// Verifier evaluates whether the unlocking script of input i in tx
// satisfies previousOutput's locking script. It has no side effects on
// consensus state.
type Verifier interface {
	VerifyInput(tx *block.Transaction, inputIndex int, previousOutput block.TxOutput) bool
}

// alwaysValid accepts every input unconditionally, useful for tests and for
// callers that defer real script evaluation to an external component.
type alwaysValid struct{}

// AlwaysValid is a Verifier that accepts every input.
var AlwaysValid Verifier = alwaysValid{}

func (alwaysValid) VerifyInput(*block.Transaction, int, block.TxOutput) bool {
	return true
}

// stackEvaluator is a minimal verifier: the unlocking script must equal the
// locking script byte-for-byte; no script is executed. It exists to give
// tests a Verifier with actual failure modes, not to model a real VM.
type stackEvaluator struct{}

// Evaluate is a trivial verifier comparing scripts directly.
var Evaluate Verifier = stackEvaluator{}

func (stackEvaluator) VerifyInput(tx *block.Transaction, inputIndex int, previousOutput block.TxOutput) bool {
	if inputIndex < 0 || inputIndex >= len(tx.Inputs) {
		return false
	}
	return bytes.Equal(tx.Inputs[inputIndex].UnlockingScript, previousOutput.LockingScript)
}
