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
	"encoding/json"
	"fmt"

	"github.com/scraperwall/botgate/data"
)

// Store is a typed view on a Driver. Records are stored as JSON.
type Store struct {
	Driver
}

// New wraps a driver
func New(driver Driver) *Store {
	return &Store{Driver: driver}
}

// Rule returns the rule for ip or ErrNotFound
func (s *Store) Rule(ip string) (*data.Rule, error) {
	var r data.Rule
	if err := s.get(RuleTable, ip, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveRule writes a rule keyed by its IP
func (s *Store) SaveRule(r *data.Rule) error {
	return s.save(RuleTable, r.IP, r)
}

// DeleteRule removes the rule of ip
func (s *Store) DeleteRule(ip string) error {
	return s.Delete(RuleTable, ip)
}

// Rules returns all rules
func (s *Store) Rules() ([]*data.Rule, error) {
	raw, err := s.All(RuleTable)
	if err != nil {
		return nil, err
	}

	res := make([]*data.Rule, len(raw))
	for i, v := range raw {
		res[i] = new(data.Rule)
		if err := json.Unmarshal(v, res[i]); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", RuleTable, err)
		}
	}
	return res, nil
}

// FilterLog returns the behavioral counters of ip or ErrNotFound
func (s *Store) FilterLog(ip string) (*data.FilterLog, error) {
	var fl data.FilterLog
	if err := s.get(FilterTable, ip, &fl); err != nil {
		return nil, err
	}
	return &fl, nil
}

// SaveFilterLog writes the counters keyed by their IP
func (s *Store) SaveFilterLog(fl *data.FilterLog) error {
	return s.save(FilterTable, fl.IP, fl)
}

// DeleteFilterLog removes the counters of ip
func (s *Store) DeleteFilterLog(ip string) error {
	return s.Delete(FilterTable, ip)
}

// FilterLogs returns the counters of all IPs
func (s *Store) FilterLogs() ([]*data.FilterLog, error) {
	raw, err := s.All(FilterTable)
	if err != nil {
		return nil, err
	}

	res := make([]*data.FilterLog, len(raw))
	for i, v := range raw {
		res[i] = new(data.FilterLog)
		if err := json.Unmarshal(v, res[i]); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", FilterTable, err)
		}
	}
	return res, nil
}

// SaveSession writes a session keyed by its ID
func (s *Store) SaveSession(sess *data.Session) error {
	return s.save(SessionTable, sess.ID, sess)
}

// DeleteSession removes a session
func (s *Store) DeleteSession(id string) error {
	return s.Delete(SessionTable, id)
}

// Sessions returns all stored sessions
func (s *Store) Sessions() ([]*data.Session, error) {
	raw, err := s.All(SessionTable)
	if err != nil {
		return nil, err
	}

	res := make([]*data.Session, len(raw))
	for i, v := range raw {
		res[i] = new(data.Session)
		if err := json.Unmarshal(v, res[i]); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", SessionTable, err)
		}
	}
	return res, nil
}

func (s *Store) get(table Table, key string, v interface{}) error {
	raw, err := s.Get(table, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s record %s: %w", table, key, err)
	}
	return nil
}

func (s *Store) save(table Table, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(table, key, raw)
}
