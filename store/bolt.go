/*
	botgate - a request firewall by ScraperWall
	Copyright (C) 2021 ScraperWall, Tobias von Dewitz <tobias@scraperwall.com>

	This program is free software: you can redistribute it and/or modify it
	under the terms of the GNU Affero General Public License as published by
	the Free Software Foundation, either version 3 of the License, or (at your
	option) any later version.

	This program is distributed in the hope that it will be useful, but WITHOUT
	ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
	FITNESS FOR A PARTICULAR PURPOSE. See the GNU Affero General Public License
	for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program. If not, see <https://www.gnu.org/licenses/>.
*/

package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltDriver stores every table in its own bucket of a single bbolt file
type BoltDriver struct {
	db *bolt.DB
}

// NewBoltDriver opens (or creates) the bbolt file at path
func NewBoltDriver(path string) (*BoltDriver, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	return &BoltDriver{db: db}, nil
}

// Init creates the buckets when autoCreate is set. Without autoCreate a
// missing bucket is an error.
func (bd *BoltDriver) Init(autoCreate bool) error {
	if !autoCreate {
		return bd.db.View(func(tx *bolt.Tx) error {
			for _, t := range Tables {
				if tx.Bucket([]byte(t)) == nil {
					return fmt.Errorf("bucket %s does not exist", t)
				}
			}
			return nil
		})
	}

	return bd.db.Update(func(tx *bolt.Tx) error {
		for _, t := range Tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(t)); err != nil {
				return fmt.Errorf("create bucket %s: %w", t, err)
			}
		}
		return nil
	})
}

// Get returns the value stored for key
func (bd *BoltDriver) Get(table Table, key string) ([]byte, error) {
	var value []byte

	err := bd.db.View(func(tx *bolt.Tx) error {
		b, err := bd.bucket(tx, table)
		if err != nil {
			return err
		}

		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}

		// v is only valid during the transaction
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})

	return value, err
}

// Save stores value for key
func (bd *BoltDriver) Save(table Table, key string, value []byte) error {
	return bd.db.Update(func(tx *bolt.Tx) error {
		b, err := bd.bucket(tx, table)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Delete removes key from the table
func (bd *BoltDriver) Delete(table Table, key string) error {
	return bd.db.Update(func(tx *bolt.Tx) error {
		b, err := bd.bucket(tx, table)
		if err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

// All returns all values of a table in key order
func (bd *BoltDriver) All(table Table) ([][]byte, error) {
	res := make([][]byte, 0)

	err := bd.db.View(func(tx *bolt.Tx) error {
		b, err := bd.bucket(tx, table)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			data := make([]byte, len(v))
			copy(data, v)
			res = append(res, data)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	return res, nil
}

// Rebuild drops and recreates all buckets
func (bd *BoltDriver) Rebuild() error {
	return bd.db.Update(func(tx *bolt.Tx) error {
		for _, t := range Tables {
			if tx.Bucket([]byte(t)) != nil {
				if err := tx.DeleteBucket([]byte(t)); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket([]byte(t)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the bbolt file
func (bd *BoltDriver) Close() error {
	return bd.db.Close()
}

func (bd *BoltDriver) bucket(tx *bolt.Tx, table Table) (*bolt.Bucket, error) {
	if !validTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	b := tx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("bucket %s does not exist: call Init first", table)
	}
	return b, nil
}
