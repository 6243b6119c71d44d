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

package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults don't validate: %s", err)
	}

	if c.Quota.Second != 2 || c.Quota.Minute != 10 || c.Quota.Hour != 30 || c.Quota.Day != 60 {
		t.Errorf("unexpected default quotas %+v", c.Quota)
	}
	if c.FlagResetWindow != time.Hour {
		t.Errorf("flag reset window is %s instead of 1h", c.FlagResetWindow)
	}
	if c.Filters.Cookie {
		t.Error("the cookie filter should be off by default")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero quota":          func(c *Config) { c.Quota.Minute = 0 },
		"negative unusual":    func(c *Config) { c.UnusualQuota.Referer = -1 },
		"negative interval":   func(c *Config) { c.DetectionPeriod = -time.Second },
		"zero buffer":         func(c *Config) { c.DenyAttempt.DataCircle = true; c.Buffer.DataCircle = 0 },
		"negative sessions":   func(c *Config) { c.SessionLimit.Count = -1 },
		"no session period":   func(c *Config) { c.SessionLimit.Count = 5; c.SessionLimit.Period = 0 },
		"gc ratio too big":    func(c *Config) { c.SessionGCRatio = 1.5 },
		"cookie without name": func(c *Config) { c.Filters.Cookie = true; c.JSCookieName = "" },
	}

	for name, mod := range cases {
		c := Defaults()
		mod(c)
		if err := c.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Validate returned %v instead of ErrInvalid", name, err)
		}
	}

	// a zero quota is fine when the frequency filter is off
	c := Defaults()
	c.Filters.Frequency = false
	c.Quota = Quota{}
	if err := c.Validate(); err != nil {
		t.Errorf("disabled frequency filter with zero quotas failed: %s", err)
	}
}
