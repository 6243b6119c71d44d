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
	"sort"
	"sync"
)

// MemoryDriver keeps all tables in process memory. It is used in tests and
// for log replays.
type MemoryDriver struct {
	tables map[Table]map[string][]byte
	mutex  sync.RWMutex
}

// NewMemoryDriver creates an empty in-memory driver
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		tables: make(map[Table]map[string][]byte),
		mutex:  sync.RWMutex{},
	}
}

// Init creates the tables
func (md *MemoryDriver) Init(autoCreate bool) error {
	md.mutex.Lock()
	defer md.mutex.Unlock()

	for _, t := range Tables {
		if _, ok := md.tables[t]; !ok {
			md.tables[t] = make(map[string][]byte)
		}
	}
	return nil
}

// Get returns a copy of the value stored for key
func (md *MemoryDriver) Get(table Table, key string) ([]byte, error) {
	md.mutex.RLock()
	defer md.mutex.RUnlock()

	t, err := md.table(table)
	if err != nil {
		return nil, err
	}

	v, ok := t[key]
	if !ok {
		return nil, ErrNotFound
	}

	value := make([]byte, len(v))
	copy(value, v)
	return value, nil
}

// Save stores a copy of value for key
func (md *MemoryDriver) Save(table Table, key string, value []byte) error {
	md.mutex.Lock()
	defer md.mutex.Unlock()

	t, err := md.table(table)
	if err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)
	t[key] = v
	return nil
}

// Delete removes key from the table. Deleting a missing key is not an error.
func (md *MemoryDriver) Delete(table Table, key string) error {
	md.mutex.Lock()
	defer md.mutex.Unlock()

	t, err := md.table(table)
	if err != nil {
		return err
	}

	delete(t, key)
	return nil
}

// All returns all values of a table ordered by key
func (md *MemoryDriver) All(table Table) ([][]byte, error) {
	md.mutex.RLock()
	defer md.mutex.RUnlock()

	t, err := md.table(table)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make([][]byte, len(keys))
	for i, k := range keys {
		res[i] = make([]byte, len(t[k]))
		copy(res[i], t[k])
	}
	return res, nil
}

// Rebuild empties all tables
func (md *MemoryDriver) Rebuild() error {
	md.mutex.Lock()
	defer md.mutex.Unlock()

	for _, t := range Tables {
		md.tables[t] = make(map[string][]byte)
	}
	return nil
}

// Close is a no-op
func (md *MemoryDriver) Close() error {
	return nil
}

func (md *MemoryDriver) table(table Table) (map[string][]byte, error) {
	if !validTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	t, ok := md.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist: call Init first", table)
	}
	return t, nil
}
