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

package botgate

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/scraperwall/botgate/data"
)

// Stats counts outcomes
type Stats struct {
	Total           int64     `json:"total"`
	Allow           int64     `json:"allow"`
	Deny            int64     `json:"deny"`
	TemporarilyDeny int64     `json:"temporarily_deny"`
	Queued          int64     `json:"queued"`
	Time            time.Time `json:"time"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Stats) add(r data.Result) {
	switch r {
	case data.Allow:
		s.Allow++
	case data.Deny:
		s.Deny++
	case data.TemporarilyDeny:
		s.TemporarilyDeny++
	case data.SessionQueueLimit:
		s.Queued++
	}
	s.Total++
}

func (s *Stats) sub(o Stats) {
	s.Total -= o.Total
	s.Allow -= o.Allow
	s.Deny -= o.Deny
	s.TemporarilyDeny -= o.TemporarilyDeny
	s.Queued -= o.Queued
}

// StatsWindows keeps outcome counts in consecutive time windows plus the
// totals over all windows
type StatsWindows struct {
	Stats
	windows    *treemap.Map
	windowSize time.Duration
	numWindows int
	mutex      sync.RWMutex
}

// NewStatsWindows creates numWindows windows of windowSize each
func NewStatsWindows(windowSize time.Duration, numWindows int) *StatsWindows {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if numWindows < 1 {
		numWindows = 1
	}

	return &StatsWindows{
		windows:    treemap.NewWith(utils.TimeComparator),
		windowSize: windowSize,
		numWindows: numWindows,
	}
}

// Add counts a result at time t
func (s *StatsWindows) Add(r data.Result, t time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	k := t.Truncate(s.windowSize)

	var stats Stats
	if v, ok := s.windows.Get(k); ok {
		stats = v.(Stats)
	} else {
		stats = Stats{Time: k}
	}

	stats.add(r)
	stats.UpdatedAt = t
	s.Stats.add(r)
	s.Stats.UpdatedAt = t

	s.windows.Put(k, stats)
}

// Totals returns the counts over all windows
func (s *StatsWindows) Totals() Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.Stats
}

// All returns the windows in chronological order
func (s *StatsWindows) All() []Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]Stats, 0, s.windows.Size())
	it := s.windows.Iterator()
	for it.Next() {
		res = append(res, it.Value().(Stats))
	}
	return res
}

// Expire drops the windows that are older than numWindows windows before now
func (s *StatsWindows) Expire(now time.Time) {
	threshold := now.Add(-s.windowSize * time.Duration(s.numWindows))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for !s.windows.Empty() {
		k, v := s.windows.Min()
		key := k.(time.Time)
		if key.After(threshold) {
			break
		}

		s.Stats.sub(v.(Stats))
		s.windows.Remove(key)
	}
}
