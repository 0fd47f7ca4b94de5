package payroll

import (
	"encoding/json"
	"errors"
	"os"
	"path"
	"time"

	"github.com/everFinance/payroll/schema"
	bolt "go.etcd.io/bbolt"
)

const (
	boltAllocSize = 8 * 1024 * 1024
	boltName      = "payroll.db"

	BatchReceiptBucket = "batch-receipt-bucket"
)

var ErrNotExist = errors.New("not_exist_record")

// Store journals every successfully executed relay batch in a local kv db,
// keyed by batch id.
type Store struct {
	BoltDb *bolt.DB
}

func NewBoltStore(boltDirPath string) (*Store, error) {
	if len(boltDirPath) == 0 {
		return nil, errors.New("boltDb dir path can not null")
	}
	if err := os.MkdirAll(boltDirPath, os.ModePerm); err != nil {
		return nil, err
	}

	Db, err := bolt.Open(path.Join(boltDirPath, boltName), 0660, &bolt.Options{Timeout: 2 * time.Second, InitialMmapSize: 10e6})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	Db.AllocSize = boltAllocSize
	kv := &Store{
		BoltDb: Db,
	}
	if err := kv.BoltDb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BatchReceiptBucket))
		return err
	}); err != nil {
		return nil, err
	}
	return kv, nil
}

func (s *Store) Close() error {
	return s.BoltDb.Close()
}

func (s *Store) SaveBatchReceipt(receipt schema.BatchReceipt) error {
	val, err := json.Marshal(&receipt)
	if err != nil {
		return err
	}
	return s.BoltDb.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BatchReceiptBucket))
		return bkt.Put([]byte(receipt.BatchId), val)
	})
}

func (s *Store) LoadBatchReceipt(batchId string) (receipt schema.BatchReceipt, err error) {
	err = s.BoltDb.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BatchReceiptBucket)).Get([]byte(batchId))
		if data == nil {
			return ErrNotExist
		}
		return json.Unmarshal(data, &receipt)
	})
	return
}

func (s *Store) IsExistBatchReceipt(batchId string) bool {
	_, err := s.LoadBatchReceipt(batchId)
	return err == nil
}

// PruneBatchReceipts drops receipts older than before (unix s); returns the
// number removed.
func (s *Store) PruneBatchReceipts(before int64) (int, error) {
	cnt := 0
	err := s.BoltDb.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BatchReceiptBucket))
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			receipt := schema.BatchReceipt{}
			if err := json.Unmarshal(v, &receipt); err != nil {
				continue
			}
			if receipt.Timestamp < before {
				if err := c.Delete(); err != nil {
					return err
				}
				cnt++
			}
		}
		return nil
	})
	return cnt, err
}
