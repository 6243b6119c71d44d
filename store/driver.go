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
	"errors"
)

// Table is one of the logical tables the firewall persists
type Table string

// The tables every driver has to provide
const (
	RuleTable    Table = "rule"
	FilterTable  Table = "filter_log"
	SessionTable Table = "session"
)

// Tables lists all tables, e.g. for Rebuild
var Tables = []Table{RuleTable, FilterTable, SessionTable}

// ErrNotFound is returned by Get when the key does not exist in the table
var ErrNotFound = errors.New("key not found")

// Driver is the key/value contract the firewall needs from a storage backend.
// Save must replace the value of a single key atomically so that concurrent
// readers never observe a partially written record.
type Driver interface {
	// Init prepares the backend. It is idempotent and safe to call often.
	Init(autoCreate bool) error
	Get(table Table, key string) ([]byte, error)
	Save(table Table, key string, value []byte) error
	Delete(table Table, key string) error
	All(table Table) ([][]byte, error)
	// Rebuild empties all tables (one data circle)
	Rebuild() error
	Close() error
}

func validTable(table Table) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

// ErrUnknownTable is returned when a driver is asked for a table it doesn't know
var ErrUnknownTable = errors.New("unknown table")
