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
	"testing"
	"time"

	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/store"
)

func newTestAdmission(t *testing.T, count int, gcRatio float64) (*SessionAdmission, *store.Store) {
	t.Helper()

	c := config.Defaults()
	c.SessionLimit = config.SessionLimit{Count: count, Period: 300 * time.Second}
	c.SessionGCRatio = gcRatio

	s := store.New(store.NewMemoryDriver())
	if err := s.Init(true); err != nil {
		t.Fatal(err)
	}
	return NewSessionAdmission(c, s), s
}

func TestAdmissionWithoutLimit(t *testing.T) {
	sa, s := newTestAdmission(t, 0, 1)

	for i := 0; i < 10; i++ {
		outcome, err := sa.Admit(fmt.Sprintf("s%d", i), "10.2.0.1", base)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Result != data.Allow {
			t.Errorf("without a limit every session should be allowed")
		}
	}

	if sessions, _ := s.Sessions(); len(sessions) != 0 {
		t.Errorf("without a limit no sessions should be recorded but %d were", len(sessions))
	}
}

func TestAdmissionOrder(t *testing.T) {
	sa, _ := newTestAdmission(t, 2, 0)

	// all sessions arrive in the same instant: the stamps keep them apart
	for i, want := range []data.Result{data.Allow, data.Allow, data.SessionQueueLimit, data.SessionQueueLimit} {
		outcome, err := sa.Admit(fmt.Sprintf("s%d", i), "10.2.0.2", base)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Result != want {
			t.Errorf("session #%d should be %s but is %s", i+1, want, outcome.Result)
		}
	}

	// known sessions keep their place
	outcome, _ := sa.Admit("s1", "10.2.0.2", base.Add(time.Second))
	if outcome.Result != data.Allow || outcome.SessionOrder != 2 {
		t.Errorf("s1 should stay #2 but got %+v", outcome)
	}
	outcome, _ = sa.Admit("s3", "10.2.0.2", base.Add(time.Second))
	if outcome.SessionOrder != 4 || outcome.SessionQueue != 2 {
		t.Errorf("s3 should be #4 and second in the queue but got %+v", outcome)
	}
}

func TestAdmissionExpiry(t *testing.T) {
	sa, s := newTestAdmission(t, 1, 0)

	sa.Admit("old", "10.2.0.3", base)

	later := base.Add(301 * time.Second)
	outcome, err := sa.Admit("new", "10.2.0.4", later)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result != data.Allow {
		t.Errorf("an expired session must not take a slot but the outcome is %s", outcome.Result)
	}

	// without a gc hit the expired session stays in the store
	sessions, _ := s.Sessions()
	if len(sessions) != 2 {
		t.Errorf("2 sessions should be stored but %d are", len(sessions))
	}

	sa.config.SessionGCRatio = 1
	sa.Admit("new", "10.2.0.4", later)

	sessions, _ = s.Sessions()
	if len(sessions) != 1 || sessions[0].ID != "new" {
		t.Errorf("the expired session should be collected: %+v", sessions)
	}
}

func TestAdmissionEmptySessionID(t *testing.T) {
	sa, s := newTestAdmission(t, 5, 0)

	if _, err := sa.Admit("", "10.2.0.5", base); err != nil {
		t.Fatal(err)
	}

	sessions, _ := s.Sessions()
	if len(sessions) != 1 || sessions[0].ID != "10.2.0.5" {
		t.Errorf("an empty session id should fall back to the ip: %+v", sessions)
	}
}

func TestMicrotimestamp(t *testing.T) {
	sa, _ := newTestAdmission(t, 1, 0)

	a := sa.microtimestamp(base)
	b := sa.microtimestamp(base)
	if a >= b {
		t.Errorf("stamps must be strictly increasing: %s >= %s", a, b)
	}
	if len(a) != 20 {
		t.Errorf("stamps must be zero-padded to 20 digits: %s", a)
	}
}
