// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package lite is the in-memory/embedded BlockchainStore realization,
// backed by github.com/tidwall/buntdb. It replaces the teacher's
// sqlite3-based lite driver — sqlite3 needs cgo and appears in no example's
// go.mod, whereas buntdb is a genuine, already-vendored, pure-Go dependency
// used elsewhere in the same teacher tree (see DESIGN.md).
package lite

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/buntdb"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
	"github.com/hybridledger/consensus-core/pkg/store"
)

// DriverName is the identifier this driver registers under.
const DriverName = "lite_v1"

var logger = log.WithField("prefix", "store/lite")

const (
	keyPrefixBlock  = "block:"
	keyPrefixHeight = "height:"
	keyPrefixTx     = "tx:"
	keyPrefixUTXO   = "utxo:"
	keyBestHash     = "meta:best"
	keyUTXOCount    = "meta:utxo_count"
)

func hashHex(h block.Hash256) string {
	return hex.EncodeToString(h[:])
}

func blockKey(hash block.Hash256) string  { return keyPrefixBlock + hashHex(hash) }
func heightKey(height uint32) string      { return keyPrefixHeight + strconv.FormatUint(uint64(height), 10) }
func txKey(txid block.Hash256) string     { return keyPrefixTx + hashHex(txid) }
func utxoKey(op block.OutPoint) string {
	return keyPrefixUTXO + hashHex(op.TxHash) + ":" + strconv.FormatUint(uint64(op.Index), 10)
}

// DB is the buntdb-backed BlockchainStore.
type DB struct {
	pool *buntdb.DB
}

// Open opens (creating if absent) a buntdb store at path. Passing ":memory:"
// keeps the store entirely in memory, matching the teacher's own
// buntdb.Open(":memory:") idiom for ephemeral pools.
func Open(path string, readOnly bool) (store.BlockchainStore, error) {
	pool, err := buntdb.Open(path)
	if err != nil {
		return nil, &store.Error{Result: store.IoError, Message: err.Error()}
	}
	config := buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkDisabled:   false,
	}
	if readOnly {
		config.SyncPolicy = buntdb.Never
	}
	if err := pool.SetConfig(config); err != nil {
		return nil, &store.Error{Result: store.IoError, Message: err.Error()}
	}
	return &DB{pool: pool}, nil
}

func encodeBlock(b *block.Block) (string, error) {
	buf := new(bytes.Buffer)
	if err := block.MarshalHeader(buf, &b.Header); err != nil {
		return "", err
	}
	if err := block.WriteUint32LE(buf, b.Header.Height); err != nil {
		return "", err
	}
	if err := block.WriteVarInt(buf, uint64(len(b.Transactions))); err != nil {
		return "", err
	}
	for i := range b.Transactions {
		if err := block.MarshalTransaction(buf, &b.Transactions[i]); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeBlock(raw string) (*block.Block, error) {
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	header, err := block.UnmarshalHeader(r)
	if err != nil {
		return nil, err
	}
	height, err := block.ReadUint32LE(r)
	if err != nil {
		return nil, err
	}
	header.Height = height
	count, err := block.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	txs := make([]block.Transaction, count)
	for i := range txs {
		tx, err := block.UnmarshalTransaction(r)
		if err != nil {
			return nil, err
		}
		txs[i] = *tx
	}
	return &block.Block{Header: *header, Transactions: txs}, nil
}

func encodeUTXOEntry(e utxo.Entry) string {
	buf := new(bytes.Buffer)
	_ = block.WriteUint64LE(buf, e.Output.Value)
	_ = block.WriteVarInt(buf, uint64(len(e.Output.LockingScript)))
	buf.Write(e.Output.LockingScript)
	_ = block.WriteUint32LE(buf, e.Height)
	if e.IsCoinbase {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return hex.EncodeToString(buf.Bytes())
}

func decodeUTXOEntry(raw string) (utxo.Entry, error) {
	data, err := hex.DecodeString(raw)
	if err != nil {
		return utxo.Entry{}, err
	}
	r := bytes.NewReader(data)
	value, err := block.ReadUint64LE(r)
	if err != nil {
		return utxo.Entry{}, err
	}
	scriptLen, err := block.ReadVarInt(r)
	if err != nil {
		return utxo.Entry{}, err
	}
	script := make([]byte, scriptLen)
	if scriptLen > 0 {
		if _, err := r.Read(script); err != nil {
			return utxo.Entry{}, err
		}
	}
	height, err := block.ReadUint32LE(r)
	if err != nil {
		return utxo.Entry{}, err
	}
	coinbaseByte, err := r.ReadByte()
	if err != nil {
		return utxo.Entry{}, err
	}
	return utxo.Entry{
		Output:     block.TxOutput{Value: value, LockingScript: script},
		Height:     height,
		IsCoinbase: coinbaseByte == 1,
	}, nil
}

func resultFromErr(err error) error {
	switch {
	case err == nil:
		return nil
	case err == buntdb.ErrNotFound:
		return &store.Error{Result: store.NotFound, Message: err.Error()}
	default:
		return &store.Error{Result: store.IoError, Message: err.Error()}
	}
}

func (d *DB) PutBlock(b *block.Block) error {
	hash, err := b.Hash()
	if err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	encoded, err := encodeBlock(b)
	if err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(blockKey(hash), encoded, nil); err != nil {
			return err
		}
		_, _, err := tx.Set(heightKey(b.Header.Height), hashHex(hash), nil)
		return err
	}))
}

func (d *DB) GetBlockByHash(hash block.Hash256) (*block.Block, error) {
	var raw string
	err := d.pool.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(blockKey(hash))
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return nil, resultFromErr(err)
	}
	b, err := decodeBlock(raw)
	if err != nil {
		return nil, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return b, nil
}

func (d *DB) GetBlockByHeight(height uint32) (*block.Block, error) {
	var hashHexStr string
	err := d.pool.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(heightKey(height))
		if err != nil {
			return err
		}
		hashHexStr = v
		return nil
	})
	if err != nil {
		return nil, resultFromErr(err)
	}
	raw, err := hex.DecodeString(hashHexStr)
	if err != nil {
		return nil, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	var hash block.Hash256
	copy(hash[:], raw)
	return d.GetBlockByHash(hash)
}

func (d *DB) HasBlock(hash block.Hash256) bool {
	err := d.pool.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(blockKey(hash))
		return err
	})
	return err == nil
}

func (d *DB) DeleteBlock(hash block.Hash256) error {
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(blockKey(hash))
		return err
	}))
}

func (d *DB) PutTx(txid block.Hash256, transaction *block.Transaction) error {
	buf := new(bytes.Buffer)
	if err := block.MarshalTransaction(buf, transaction); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	encoded := hex.EncodeToString(buf.Bytes())
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(txKey(txid), encoded, nil)
		return err
	}))
}

func (d *DB) GetTx(txid block.Hash256) (*block.Transaction, error) {
	var raw string
	err := d.pool.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(txKey(txid))
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return nil, resultFromErr(err)
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	transaction, err := block.UnmarshalTransaction(bytes.NewReader(data))
	if err != nil {
		return nil, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return transaction, nil
}

func (d *DB) HasTx(txid block.Hash256) bool {
	err := d.pool.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(txKey(txid))
		return err
	})
	return err == nil
}

func (d *DB) DeleteTx(txid block.Hash256) error {
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(txKey(txid))
		return err
	}))
}

func (d *DB) PutUTXO(outpoint block.OutPoint, entry utxo.Entry) error {
	encoded := encodeUTXOEntry(entry)
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		_, replaced, err := tx.Set(utxoKey(outpoint), encoded, nil)
		if err != nil {
			return err
		}
		if !replaced {
			return bumpUTXOCount(tx, 1)
		}
		return nil
	}))
}

func (d *DB) GetUTXO(outpoint block.OutPoint) (utxo.Entry, error) {
	var raw string
	err := d.pool.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(utxoKey(outpoint))
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return utxo.Entry{}, resultFromErr(err)
	}
	entry, err := decodeUTXOEntry(raw)
	if err != nil {
		return utxo.Entry{}, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return entry, nil
}

func (d *DB) HasUTXO(outpoint block.OutPoint) bool {
	err := d.pool.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(utxoKey(outpoint))
		return err
	})
	return err == nil
}

func (d *DB) DeleteUTXO(outpoint block.OutPoint) error {
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(utxoKey(outpoint))
		if err != nil {
			return err
		}
		return bumpUTXOCount(tx, -1)
	}))
}

func bumpUTXOCount(tx *buntdb.Tx, delta int64) error {
	current, err := tx.Get(keyUTXOCount)
	var count int64
	if err == nil {
		count, _ = strconv.ParseInt(current, 10, 64)
	}
	count += delta
	if count < 0 {
		count = 0
	}
	_, _, err = tx.Set(keyUTXOCount, strconv.FormatInt(count, 10), nil)
	return err
}

func (d *DB) PutBestBlockHash(hash block.Hash256) error {
	return resultFromErr(d.pool.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyBestHash, hashHex(hash), nil)
		return err
	}))
}

func (d *DB) GetBestBlockHash() (block.Hash256, error) {
	var raw string
	err := d.pool.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(keyBestHash)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return block.Hash256{}, resultFromErr(err)
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return block.Hash256{}, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	var hash block.Hash256
	copy(hash[:], data)
	return hash, nil
}

func (d *DB) GetHeight() (uint32, error) {
	hash, err := d.GetBestBlockHash()
	if err != nil {
		return 0, err
	}
	b, err := d.GetBlockByHash(hash)
	if err != nil {
		return 0, err
	}
	return b.Header.Height, nil
}

func (d *DB) GetUTXOCount() (uint64, error) {
	var raw string
	err := d.pool.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(keyUTXOCount)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				raw = "0"
				return nil
			}
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return 0, resultFromErr(err)
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return count, nil
}

// txn buffers mutations and applies them as one buntdb.Update on Commit,
// giving the lite store the same begin/commit/rollback batch shape as the
// heavy store, per the storage contract's transaction requirement.
type txn struct {
	db  *DB
	ops []func(*buntdb.Tx) error
}

func (d *DB) Begin() (store.Transaction, error) {
	return &txn{db: d}, nil
}

func (t *txn) Commit() error {
	return resultFromErr(t.db.pool.Update(func(tx *buntdb.Tx) error {
		for _, op := range t.ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (t *txn) Rollback() error {
	t.ops = nil
	return nil
}

func (t *txn) PutBlock(b *block.Block) error {
	encoded, err := encodeBlock(b)
	if err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	hash, err := b.Hash()
	if err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	height := b.Header.Height
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(blockKey(hash), encoded, nil); err != nil {
			return err
		}
		_, _, err := tx.Set(heightKey(height), hashHex(hash), nil)
		return err
	})
	return nil
}

func (t *txn) DeleteBlock(hash block.Hash256) error {
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		_, err := tx.Delete(blockKey(hash))
		return err
	})
	return nil
}

func (t *txn) PutTx(txid block.Hash256, transaction *block.Transaction) error {
	buf := new(bytes.Buffer)
	if err := block.MarshalTransaction(buf, transaction); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	encoded := hex.EncodeToString(buf.Bytes())
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(txKey(txid), encoded, nil)
		return err
	})
	return nil
}

func (t *txn) DeleteTx(txid block.Hash256) error {
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		_, err := tx.Delete(txKey(txid))
		return err
	})
	return nil
}

func (t *txn) PutUTXO(outpoint block.OutPoint, entry utxo.Entry) error {
	encoded := encodeUTXOEntry(entry)
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		_, replaced, err := tx.Set(utxoKey(outpoint), encoded, nil)
		if err != nil {
			return err
		}
		if !replaced {
			return bumpUTXOCount(tx, 1)
		}
		return nil
	})
	return nil
}

func (t *txn) DeleteUTXO(outpoint block.OutPoint) error {
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		_, err := tx.Delete(utxoKey(outpoint))
		if err != nil {
			return err
		}
		return bumpUTXOCount(tx, -1)
	})
	return nil
}

func (t *txn) PutBestBlockHash(hash block.Hash256) error {
	t.ops = append(t.ops, func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyBestHash, hashHex(hash), nil)
		return err
	})
	return nil
}

func (d *DB) Close() error {
	return resultFromErr(d.pool.Close())
}

func init() {
	if err := store.Register(&driver{}); err != nil {
		logger.WithError(err).Panic("failed to register lite driver")
	}
}

type driver struct{}

func (driver) Open(path string, readOnly bool) (store.BlockchainStore, error) {
	return Open(path, readOnly)
}

func (driver) Name() string { return DriverName }
