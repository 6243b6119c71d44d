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
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

// SessionAdmission limits the number of concurrently admitted sessions.
// Sessions are admitted in the order they were first seen; the ones beyond
// the limit are queued.
type SessionAdmission struct {
	config    *config.Config
	store     *store.Store
	rand      *rand.Rand
	lastStamp int64
	mutex     sync.Mutex
}

// NewSessionAdmission creates a session admission controller on the session table of s
func NewSessionAdmission(config *config.Config, s *store.Store) *SessionAdmission {
	return &SessionAdmission{
		config: config,
		store:  s,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Admit records the session and returns Allow or SessionQueueLimit.
// An empty sessionID falls back to the IP.
func (sa *SessionAdmission) Admit(sessionID, ip string, now time.Time) (data.Outcome, error) {
	limit := sa.config.SessionLimit
	if limit.Count <= 0 {
		return data.Outcome{Result: data.Allow}, nil
	}

	if sessionID == "" {
		sessionID = ip
	}

	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	sessions, err := sa.store.Sessions()
	if err != nil {
		return data.Outcome{}, fmt.Errorf("failed to load sessions: %w", err)
	}

	collect := sa.rand.Float64() < sa.config.SessionGCRatio

	online := treemap.NewWith(sessionComparator)
	var current *data.Session

	for _, s := range sessions {
		if now.Sub(s.CreatedAt) > limit.Period {
			if collect {
				if err := sa.store.DeleteSession(s.ID); err != nil {
					return data.Outcome{}, fmt.Errorf("failed to delete expired session %s: %w", s.ID, err)
				}
			}
			continue
		}

		online.Put(s, true)
		if s.ID == sessionID {
			current = s
		}
	}

	if current == nil {
		current = &data.Session{
			ID:             sessionID,
			IP:             ip,
			CreatedAt:      now,
			Microtimestamp: sa.microtimestamp(now),
		}
		if err := sa.store.SaveSession(current); err != nil {
			return data.Outcome{}, fmt.Errorf("failed to save session %s: %w", sessionID, err)
		}
		online.Put(current, true)
	}

	order := 0
	it := online.Iterator()
	for it.Next() {
		order++
		if it.Key().(*data.Session).ID == sessionID {
			break
		}
	}

	if order > limit.Count {
		log.Tracef("session %s of %s is queued at %d/%d", sessionID, ip, order, limit.Count)
		return data.Outcome{
			Result:       data.SessionQueueLimit,
			SessionOrder: order,
			SessionQueue: order - limit.Count,
		}, nil
	}

	return data.Outcome{Result: data.Allow, SessionOrder: order}, nil
}

// microtimestamp returns a zero-padded nanosecond stamp that is strictly
// increasing within the process
func (sa *SessionAdmission) microtimestamp(now time.Time) string {
	ns := now.UnixNano()
	if ns <= sa.lastStamp {
		ns = sa.lastStamp + 1
	}
	sa.lastStamp = ns
	return fmt.Sprintf("%020d", ns)
}

// sessionComparator orders sessions by creation time, stamp and id
func sessionComparator(a, b interface{}) int {
	s1 := a.(*data.Session)
	s2 := b.(*data.Session)

	switch {
	case s1.CreatedAt.Before(s2.CreatedAt):
		return -1
	case s1.CreatedAt.After(s2.CreatedAt):
		return 1
	}

	if c := strings.Compare(s1.Microtimestamp, s2.Microtimestamp); c != 0 {
		return c
	}
	return strings.Compare(s1.ID, s2.ID)
}
