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

package data

import (
	"testing"
	"time"
)

func TestResultFor(t *testing.T) {
	cases := map[Action]Result{
		ActionAllow:           Allow,
		ActionDeny:            Deny,
		ActionTemporarilyDeny: TemporarilyDeny,
	}
	for a, want := range cases {
		if got := ResultFor(a); got != want {
			t.Errorf("ResultFor(%s) is %s instead of %s", a, got, want)
		}
	}
}

func TestLogCodeFor(t *testing.T) {
	cases := map[Result]LogCode{
		Allow:             LogPageview,
		Deny:              LogBlacklist,
		TemporarilyDeny:   LogCaptcha,
		SessionQueueLimit: LogLimit,
	}
	for r, want := range cases {
		if got := LogCodeFor(r); got != want {
			t.Errorf("LogCodeFor(%s) is %d instead of %d", r, got, want)
		}
	}
}

func TestReasons(t *testing.T) {
	if !ReasonGoogle.IsAllowReason() {
		t.Error("is-google should be an allow reason")
	}
	if ReasonReachedLimitSecond.IsAllowReason() {
		t.Error("reached-limit-second should not be an allow reason")
	}
	if Reason(777).String() != "reason-777" {
		t.Errorf("unknown reason is named %s", Reason(777))
	}

	for _, u := range TimeUnits {
		if !u.LimitReason().IsDenyReason() {
			t.Errorf("limit reason of %s is not a deny reason", u)
		}
	}
}

func TestNewFilterLog(t *testing.T) {
	now := time.Now()
	fl := NewFilterLog("1.2.3.4", "s", "", now)
	fl.EmptyReferer = 2
	fl.FirstFlaggedAt = now

	fl.ClearFlags()
	if fl.EmptyReferer != 0 || !fl.FirstFlaggedAt.IsZero() {
		t.Errorf("flags were not cleared: %+v", fl)
	}
	if fl.Windows[Day].Pageviews != 1 {
		t.Errorf("day window counts %d pageviews instead of 1", fl.Windows[Day].Pageviews)
	}
}
