// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package store defines the storage collaborator contract (§6.2) and the
// pluggable driver registry realizations register against, copied nearly
// verbatim from the pattern database/sql itself uses.
package store

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
)

// Result classifies the outcome of a storage operation.
type Result int

// Recognized storage results.
const (
	Ok Result = iota
	NotFound
	AlreadyExists
	Corruption
	IoError
	InvalidData
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case Corruption:
		return "corruption"
	case IoError:
		return "io_error"
	case InvalidData:
		return "invalid_data"
	default:
		return "unknown"
	}
}

// Error wraps a Result with contextual detail, satisfying the error
// interface so storage failures compose with the rest of the error design.
type Error struct {
	Result  Result
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Result, e.Message)
}

// Transaction is a batch of storage mutations committed or rolled back
// atomically. All block ingestion is wrapped in exactly one Transaction.
type Transaction interface {
	Commit() error
	Rollback() error

	PutBlock(b *block.Block) error
	DeleteBlock(hash block.Hash256) error
	PutTx(txid block.Hash256, tx *block.Transaction) error
	DeleteTx(txid block.Hash256) error
	PutUTXO(outpoint block.OutPoint, entry utxo.Entry) error
	DeleteUTXO(outpoint block.OutPoint) error
	PutBestBlockHash(hash block.Hash256) error
}

// BlockchainStore is the storage collaborator every consensus engine is
// generic over. Both an on-disk (heavy) and an in-memory (lite)
// realization must be interchangeable behind this interface.
type BlockchainStore interface {
	PutBlock(b *block.Block) error
	GetBlockByHash(hash block.Hash256) (*block.Block, error)
	GetBlockByHeight(height uint32) (*block.Block, error)
	HasBlock(hash block.Hash256) bool
	DeleteBlock(hash block.Hash256) error

	PutTx(txid block.Hash256, tx *block.Transaction) error
	GetTx(txid block.Hash256) (*block.Transaction, error)
	HasTx(txid block.Hash256) bool
	DeleteTx(txid block.Hash256) error

	PutUTXO(outpoint block.OutPoint, entry utxo.Entry) error
	GetUTXO(outpoint block.OutPoint) (utxo.Entry, error)
	HasUTXO(outpoint block.OutPoint) bool
	DeleteUTXO(outpoint block.OutPoint) error

	PutBestBlockHash(hash block.Hash256) error
	GetBestBlockHash() (block.Hash256, error)
	GetHeight() (uint32, error)
	GetUTXOCount() (uint64, error)

	Begin() (Transaction, error)

	Close() error
}

// Driver opens a named BlockchainStore realization.
type Driver interface {
	Open(path string, readOnly bool) (BlockchainStore, error)
	Name() string
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register adds a driver under its own Name(). It panics-free: duplicate
// registration is reported as an error, matching database/sql's contract
// minus the panic, since this core forbids panicking on well-formed input.
func Register(d Driver) error {
	driversMu.Lock()
	defer driversMu.Unlock()
	name := d.Name()
	if _, exists := drivers[name]; exists {
		return errors.Errorf("store: driver %q already registered", name)
	}
	drivers[name] = d
	return nil
}

// Drivers returns the names of every registered driver.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}

// From looks up a registered driver by name.
func From(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, errors.Errorf("store: unknown driver %q", name)
	}
	return d, nil
}
