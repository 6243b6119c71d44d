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
	"testing"
	"time"

	"github.com/scraperwall/botgate/data"
)

func TestStatsWindows(t *testing.T) {
	sw := NewStatsWindows(time.Minute, 3)

	results := []data.Result{data.Allow, data.Allow, data.Deny, data.TemporarilyDeny, data.SessionQueueLimit}
	for i, r := range results {
		sw.Add(r, base.Add(time.Duration(i)*time.Minute))
	}

	totals := sw.Totals()
	if totals.Total != 5 || totals.Allow != 2 || totals.Deny != 1 || totals.TemporarilyDeny != 1 || totals.Queued != 1 {
		t.Errorf("unexpected totals %+v", totals)
	}
	if len(sw.All()) != 5 {
		t.Errorf("expected 5 windows but got %d", len(sw.All()))
	}

	sw.Expire(base.Add(5 * time.Minute))

	all := sw.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 windows after expiry but got %d", len(all))
	}
	if !all[0].Time.Equal(base.Add(3*time.Minute)) || all[0].TemporarilyDeny != 1 {
		t.Errorf("unexpected oldest window %+v", all[0])
	}

	totals = sw.Totals()
	if totals.Total != 2 || totals.Allow != 0 || totals.Queued != 1 {
		t.Errorf("the totals should only count the remaining windows: %+v", totals)
	}
}

func TestStatsWindowsSameWindow(t *testing.T) {
	sw := NewStatsWindows(time.Minute, 60)

	sw.Add(data.Allow, base)
	sw.Add(data.Allow, base.Add(30*time.Second))

	all := sw.All()
	if len(all) != 1 || all[0].Allow != 2 || !all[0].UpdatedAt.Equal(base.Add(30*time.Second)) {
		t.Errorf("two results in the same minute should share a window: %+v", all)
	}
}
