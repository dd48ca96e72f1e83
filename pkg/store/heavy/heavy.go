// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package heavy is the on-disk BlockchainStore realization, backed by
// goleveldb, adapted from the teacher's pkg/core/database/heavy package.
package heavy

import (
	"bytes"

	log "github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	lvlerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
	"github.com/hybridledger/consensus-core/pkg/store"
)

// DriverName is the identifier this driver registers under.
const DriverName = "heavy_v1"

var logger = log.WithField("prefix", "store/heavy")

const (
	prefixBlockByHash   = 'b'
	prefixBlockByHeight = 'h'
	prefixTx            = 't'
	prefixUTXO          = 'u'
	keyBestBlockHash    = "meta:best"
	keyHeight           = "meta:height"
	keyUTXOCount        = "meta:utxo_count"
)

func blockKey(hash block.Hash256) []byte {
	return append([]byte{prefixBlockByHash}, hash[:]...)
}

func heightKey(height uint32) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(prefixBlockByHeight)
	_ = block.WriteUint32LE(buf, height)
	return buf.Bytes()
}

func txKey(txid block.Hash256) []byte {
	return append([]byte{prefixTx}, txid[:]...)
}

func utxoKey(outpoint block.OutPoint) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(prefixUTXO)
	buf.Write(outpoint.TxHash[:])
	_ = block.WriteUint32LE(buf, outpoint.Index)
	return buf.Bytes()
}

// DB is the leveldb-backed BlockchainStore.
type DB struct {
	ldb      *leveldb.DB
	readOnly bool
}

// Open opens (creating if absent) a leveldb store at path.
func Open(path string, readOnly bool) (store.BlockchainStore, error) {
	opts := &opt.Options{ReadOnly: readOnly}
	ldb, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, &store.Error{Result: store.IoError, Message: err.Error()}
	}
	return &DB{ldb: ldb, readOnly: readOnly}, nil
}

func (d *DB) resultFromErr(err error) error {
	switch {
	case err == nil:
		return nil
	case err == leveldb.ErrNotFound:
		return &store.Error{Result: store.NotFound, Message: err.Error()}
	case lvlerrors.IsCorrupted(err):
		return &store.Error{Result: store.Corruption, Message: err.Error()}
	default:
		return &store.Error{Result: store.IoError, Message: err.Error()}
	}
}

func (d *DB) PutBlock(b *block.Block) error {
	hash, err := b.Hash()
	if err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	buf := new(bytes.Buffer)
	if err := block.MarshalHeader(buf, &b.Header); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	if err := block.WriteUint32LE(buf, b.Header.Height); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	if err := block.WriteVarInt(buf, uint64(len(b.Transactions))); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	for i := range b.Transactions {
		if err := block.MarshalTransaction(buf, &b.Transactions[i]); err != nil {
			return &store.Error{Result: store.InvalidData, Message: err.Error()}
		}
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(hash), buf.Bytes())
	batch.Put(heightKey(b.Header.Height), hash[:])
	return d.resultFromErr(d.ldb.Write(batch, nil))
}

func decodeBlock(raw []byte) (*block.Block, error) {
	r := bytes.NewReader(raw)
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

func (d *DB) GetBlockByHash(hash block.Hash256) (*block.Block, error) {
	raw, err := d.ldb.Get(blockKey(hash), nil)
	if err != nil {
		return nil, d.resultFromErr(err)
	}
	b, err := decodeBlock(raw)
	if err != nil {
		return nil, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return b, nil
}

func (d *DB) GetBlockByHeight(height uint32) (*block.Block, error) {
	hashBytes, err := d.ldb.Get(heightKey(height), nil)
	if err != nil {
		return nil, d.resultFromErr(err)
	}
	var hash block.Hash256
	copy(hash[:], hashBytes)
	return d.GetBlockByHash(hash)
}

func (d *DB) HasBlock(hash block.Hash256) bool {
	ok, _ := d.ldb.Has(blockKey(hash), nil)
	return ok
}

func (d *DB) DeleteBlock(hash block.Hash256) error {
	if !d.HasBlock(hash) {
		return &store.Error{Result: store.NotFound, Message: "block not found"}
	}
	return d.resultFromErr(d.ldb.Delete(blockKey(hash), nil))
}

func (d *DB) PutTx(txid block.Hash256, tx *block.Transaction) error {
	buf := new(bytes.Buffer)
	if err := block.MarshalTransaction(buf, tx); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	return d.resultFromErr(d.ldb.Put(txKey(txid), buf.Bytes(), nil))
}

func (d *DB) GetTx(txid block.Hash256) (*block.Transaction, error) {
	raw, err := d.ldb.Get(txKey(txid), nil)
	if err != nil {
		return nil, d.resultFromErr(err)
	}
	tx, err := block.UnmarshalTransaction(bytes.NewReader(raw))
	if err != nil {
		return nil, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return tx, nil
}

func (d *DB) HasTx(txid block.Hash256) bool {
	ok, _ := d.ldb.Has(txKey(txid), nil)
	return ok
}

func (d *DB) DeleteTx(txid block.Hash256) error {
	if !d.HasTx(txid) {
		return &store.Error{Result: store.NotFound, Message: "tx not found"}
	}
	return d.resultFromErr(d.ldb.Delete(txKey(txid), nil))
}

func encodeUTXOEntry(e utxo.Entry) []byte {
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
	return buf.Bytes()
}

func decodeUTXOEntry(raw []byte) (utxo.Entry, error) {
	r := bytes.NewReader(raw)
	value, err := block.ReadUint64LE(r)
	if err != nil {
		return utxo.Entry{}, err
	}
	scriptLen, err := block.ReadVarInt(r)
	if err != nil {
		return utxo.Entry{}, err
	}
	script := make([]byte, scriptLen)
	if _, err := r.Read(script); err != nil && scriptLen > 0 {
		return utxo.Entry{}, err
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

func (d *DB) PutUTXO(outpoint block.OutPoint, entry utxo.Entry) error {
	isNew := !d.HasUTXO(outpoint)
	if err := d.resultFromErr(d.ldb.Put(utxoKey(outpoint), encodeUTXOEntry(entry), nil)); err != nil {
		return err
	}
	if isNew {
		return d.bumpUTXOCount(1)
	}
	return nil
}

func (d *DB) GetUTXO(outpoint block.OutPoint) (utxo.Entry, error) {
	raw, err := d.ldb.Get(utxoKey(outpoint), nil)
	if err != nil {
		return utxo.Entry{}, d.resultFromErr(err)
	}
	entry, err := decodeUTXOEntry(raw)
	if err != nil {
		return utxo.Entry{}, &store.Error{Result: store.Corruption, Message: err.Error()}
	}
	return entry, nil
}

func (d *DB) HasUTXO(outpoint block.OutPoint) bool {
	ok, _ := d.ldb.Has(utxoKey(outpoint), nil)
	return ok
}

func (d *DB) DeleteUTXO(outpoint block.OutPoint) error {
	if !d.HasUTXO(outpoint) {
		return &store.Error{Result: store.NotFound, Message: "utxo not found"}
	}
	if err := d.resultFromErr(d.ldb.Delete(utxoKey(outpoint), nil)); err != nil {
		return err
	}
	return d.bumpUTXOCount(-1)
}

func (d *DB) bumpUTXOCount(delta int64) error {
	count, err := d.GetUTXOCount()
	if err != nil {
		count = 0
	}
	next := int64(count) + delta
	if next < 0 {
		next = 0
	}
	buf := new(bytes.Buffer)
	_ = block.WriteUint64LE(buf, uint64(next))
	return d.resultFromErr(d.ldb.Put([]byte(keyUTXOCount), buf.Bytes(), nil))
}

func (d *DB) PutBestBlockHash(hash block.Hash256) error {
	return d.resultFromErr(d.ldb.Put([]byte(keyBestBlockHash), hash[:], nil))
}

func (d *DB) GetBestBlockHash() (block.Hash256, error) {
	raw, err := d.ldb.Get([]byte(keyBestBlockHash), nil)
	if err != nil {
		return block.Hash256{}, d.resultFromErr(err)
	}
	var hash block.Hash256
	copy(hash[:], raw)
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
	raw, err := d.ldb.Get([]byte(keyUTXOCount), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return 0, nil
		}
		return 0, d.resultFromErr(err)
	}
	return block.ReadUint64LE(bytes.NewReader(raw))
}

func (d *DB) Begin() (store.Transaction, error) {
	tx, err := d.ldb.OpenTransaction()
	if err != nil {
		return nil, d.resultFromErr(err)
	}
	return &txn{db: d, tx: tx}, nil
}

func (d *DB) Close() error {
	return d.resultFromErr(d.ldb.Close())
}

// txn wraps a leveldb transaction to satisfy store.Transaction.
type txn struct {
	db *DB
	tx *leveldb.Transaction
}

func (t *txn) Commit() error {
	return t.db.resultFromErr(t.tx.Commit())
}

func (t *txn) Rollback() error {
	t.tx.Discard()
	return nil
}

func (t *txn) PutBlock(b *block.Block) error {
	hash, err := b.Hash()
	if err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	buf := new(bytes.Buffer)
	if err := block.MarshalHeader(buf, &b.Header); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	_ = block.WriteUint32LE(buf, b.Header.Height)
	_ = block.WriteVarInt(buf, uint64(len(b.Transactions)))
	for i := range b.Transactions {
		if err := block.MarshalTransaction(buf, &b.Transactions[i]); err != nil {
			return &store.Error{Result: store.InvalidData, Message: err.Error()}
		}
	}
	if err := t.tx.Put(blockKey(hash), buf.Bytes(), nil); err != nil {
		return t.db.resultFromErr(err)
	}
	return t.db.resultFromErr(t.tx.Put(heightKey(b.Header.Height), hash[:], nil))
}

func (t *txn) DeleteBlock(hash block.Hash256) error {
	return t.db.resultFromErr(t.tx.Delete(blockKey(hash), nil))
}

func (t *txn) PutTx(txid block.Hash256, tx *block.Transaction) error {
	buf := new(bytes.Buffer)
	if err := block.MarshalTransaction(buf, tx); err != nil {
		return &store.Error{Result: store.InvalidData, Message: err.Error()}
	}
	return t.db.resultFromErr(t.tx.Put(txKey(txid), buf.Bytes(), nil))
}

func (t *txn) DeleteTx(txid block.Hash256) error {
	return t.db.resultFromErr(t.tx.Delete(txKey(txid), nil))
}

func (t *txn) PutUTXO(outpoint block.OutPoint, entry utxo.Entry) error {
	return t.db.resultFromErr(t.tx.Put(utxoKey(outpoint), encodeUTXOEntry(entry), nil))
}

func (t *txn) DeleteUTXO(outpoint block.OutPoint) error {
	return t.db.resultFromErr(t.tx.Delete(utxoKey(outpoint), nil))
}

func (t *txn) PutBestBlockHash(hash block.Hash256) error {
	return t.db.resultFromErr(t.tx.Put([]byte(keyBestBlockHash), hash[:], nil))
}

func init() {
	if err := store.Register(&driver{}); err != nil {
		logger.WithError(err).Panic("failed to register heavy driver")
	}
}

type driver struct{}

func (driver) Open(path string, readOnly bool) (store.BlockchainStore, error) {
	return Open(path, readOnly)
}

func (driver) Name() string { return DriverName }
