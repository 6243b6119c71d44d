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
	"container/list"
	"sync"
	"time"

	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
)

// Decision is a single evaluated request as kept for the admin API
type Decision struct {
	IP        string      `json:"ip"`
	SessionID string      `json:"session_id"`
	Path      string      `json:"path"`
	UserAgent string      `json:"useragent"`
	Result    data.Result `json:"result"`
	Reason    data.Reason `json:"reason"`
	Time      time.Time   `json:"time"`
}

// RecentDecisions keeps the latest decisions, at most maxSize of them and none
// older than ttl
type RecentDecisions struct {
	data    *list.List
	maxSize int
	ttl     time.Duration
	mutex   sync.RWMutex
}

// NewRecentDecisions creates an empty window
func NewRecentDecisions(maxSize int, ttl time.Duration) *RecentDecisions {
	return &RecentDecisions{
		data:    list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Add adds a single decision
func (rd *RecentDecisions) Add(d Decision) {
	if rd.maxSize <= 0 {
		return
	}

	rd.mutex.Lock()
	defer rd.mutex.Unlock()

	rd.data.PushFront(d)
	if rd.data.Len() > rd.maxSize {
		rd.data.Remove(rd.data.Back())
	}
}

// Decisions returns all decisions, the latest first
func (rd *RecentDecisions) Decisions() []Decision {
	rd.mutex.RLock()
	defer rd.mutex.RUnlock()

	res := make([]Decision, 0, rd.data.Len())
	for e := rd.data.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(Decision))
	}
	return res
}

// Len returns the number of decisions in the window
func (rd *RecentDecisions) Len() int {
	rd.mutex.RLock()
	defer rd.mutex.RUnlock()

	return rd.data.Len()
}

// Expire removes the decisions older than ttl and returns how many are left
func (rd *RecentDecisions) Expire(now time.Time) int {
	rd.mutex.Lock()
	defer rd.mutex.Unlock()

	if rd.ttl <= 0 {
		return rd.data.Len()
	}

	for {
		oldest := rd.data.Back()
		if oldest == nil {
			break
		}

		if now.Sub(oldest.Value.(Decision).Time) <= rd.ttl {
			break
		}

		rd.data.Remove(oldest)
	}

	log.Tracef("%d recent decisions left after expiry", rd.data.Len())
	return rd.data.Len()
}
