package loader

import (
	"context"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/janelia-flyem/volview/blockkey"
	"github.com/janelia-flyem/volview/vvlog"
)

// Codec names recognized by DiskLoader's Codec field.
const (
	CodecNone   = "none"
	CodecSnappy = "snappy"
	CodecZstd   = "zstd"
)

// DiskLoader is a reference, on-disk BlockLoader backed by a BadgerDB
// key-value store: a single always-open store with a background sync
// goroutine, no multi-backend registry.
type DiskLoader struct {
	db              *badger.DB
	bytesPerElement int
	codec           string
	zstdEnc         *zstd.Encoder
	zstdDec         *zstd.Decoder
	stopSync        chan struct{}
}

// DiskLoaderConfig configures a DiskLoader.
type DiskLoaderConfig struct {
	Directory       string
	BytesPerElement int
	Codec           string // CodecNone, CodecSnappy, or CodecZstd
}

// NewDiskLoader opens (creating if necessary) a BadgerDB store at
// cfg.Directory and returns a loader that compresses payloads with
// cfg.Codec before persisting them.
func NewDiskLoader(cfg DiskLoaderConfig) (*DiskLoader, error) {
	if cfg.BytesPerElement <= 0 {
		cfg.BytesPerElement = 1
	}
	if cfg.Codec == "" {
		cfg.Codec = CodecNone
	}

	if _, err := os.Stat(cfg.Directory); os.IsNotExist(err) {
		vvlog.Infof("Creating block store directory %s", cfg.Directory)
		if err := os.MkdirAll(cfg.Directory, 0744); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %w", cfg.Directory, err)
		}
	}

	opts := badger.DefaultOptions(cfg.Directory).WithLogger(nil)
	vvlog.Infof("Opening block store at %s", cfg.Directory)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}

	dl := &DiskLoader{
		db:              db,
		bytesPerElement: cfg.BytesPerElement,
		codec:           cfg.Codec,
		stopSync:        make(chan struct{}),
	}

	if cfg.Codec == CodecZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		dl.zstdEnc = enc
		dl.zstdDec = dec
	}

	go dl.syncPeriodically()
	return dl, nil
}

func (dl *DiskLoader) syncPeriodically() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-dl.stopSync:
			return
		case <-ticker.C:
			if err := dl.db.Sync(); err != nil {
				vvlog.Warnf("block store sync failed: %v", err)
			}
		}
	}
}

// Close stops the background sync goroutine and closes the store.
func (dl *DiskLoader) Close() error {
	close(dl.stopSync)
	return dl.db.Close()
}

func (dl *DiskLoader) BytesPerElement() int {
	return dl.bytesPerElement
}

func (dl *DiskLoader) EmptyArray(dims [3]int) blockkey.Payload {
	return blockkey.NewPlaceholderPayload(dims, dl.bytesPerElement)
}

func blockStoreKey(timepoint, setup, level int32, dims [3]int, origin [3]int64) []byte {
	return []byte(fmt.Sprintf("%d/%d/%d/%d,%d,%d", timepoint, setup, level, origin[0], origin[1], origin[2]))
}

// LoadArray blocks on a BadgerDB transaction read, decompressing the
// stored value with the configured codec. It returns ctx.Err() promptly if
// ctx is already done, matching the interruption contract BLOCKING and
// VOLATILE callers rely on.
func (dl *DiskLoader) LoadArray(ctx context.Context, timepoint, setup, level int32, dims [3]int, origin [3]int64) (blockkey.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := blockStoreKey(timepoint, setup, level, dims, origin)

	var raw []byte
	err := dl.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading block %s: %w", key, err)
	}

	data, err := dl.decode(raw)
	if err != nil {
		return nil, err
	}
	return blockkey.NewValidPayload(data), nil
}

// StoreArray writes data for the given block, compressing it with the
// configured codec. Exercised by tests and by any offline ingest tool
// populating the demo store; not part of the BlockLoader interface.
func (dl *DiskLoader) StoreArray(timepoint, setup, level int32, dims [3]int, origin [3]int64, data []byte) error {
	key := blockStoreKey(timepoint, setup, level, dims, origin)
	encoded, err := dl.encode(data)
	if err != nil {
		return err
	}
	return dl.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encoded)
	})
}

func (dl *DiskLoader) encode(data []byte) ([]byte, error) {
	switch dl.codec {
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecZstd:
		return dl.zstdEnc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func (dl *DiskLoader) decode(data []byte) ([]byte, error) {
	switch dl.codec {
	case CodecSnappy:
		return snappy.Decode(nil, data)
	case CodecZstd:
		return dl.zstdDec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}
