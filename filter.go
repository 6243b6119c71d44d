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
	"errors"
	"fmt"
	"time"

	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

// Filter is the behavioral filter. It counts pageviews per IP in a window of
// every time unit and flags unusual behavior.
type Filter struct {
	config *config.Config
	store  *store.Store
}

// NewFilter creates a filter working on the filter_log table of s
func NewFilter(config *config.Config, s *store.Store) *Filter {
	return &Filter{
		config: config,
		store:  s,
	}
}

// Check updates the counters of the identity's IP and returns Allow or
// TemporarilyDeny. The counters are saved in both cases.
func (f *Filter) Check(id *data.Identity, now time.Time) (data.Outcome, error) {
	fl, err := f.store.FilterLog(id.IP)
	if errors.Is(err, store.ErrNotFound) {
		fl = data.NewFilterLog(id.IP, id.SessionID, id.RDNS, now)
		if err := f.store.SaveFilterLog(fl); err != nil {
			return data.Outcome{}, fmt.Errorf("failed to save the filter log of %s: %w", id.IP, err)
		}
		return data.Outcome{Result: data.Allow}, nil
	}
	if err != nil {
		return data.Outcome{}, fmt.Errorf("failed to load the filter log of %s: %w", id.IP, err)
	}

	outcome := f.inspect(fl, id, now)

	fl.LastSeenAt = now
	fl.SessionID = id.SessionID
	if id.RDNS != "" {
		fl.Hostname = id.RDNS
	}

	if err := f.store.SaveFilterLog(fl); err != nil {
		return data.Outcome{}, fmt.Errorf("failed to save the filter log of %s: %w", id.IP, err)
	}

	if outcome.Result != data.Allow {
		log.Tracef("filter: %s is %s (%s)", id.IP, outcome.Result, outcome.Reason)
	}
	return outcome, nil
}

// inspect runs all enabled checks on fl. The first denial wins.
func (f *Filter) inspect(fl *data.FilterLog, id *data.Identity, now time.Time) data.Outcome {
	c := f.config
	outcome := data.Outcome{Result: data.Allow}

	if !fl.FirstFlaggedAt.IsZero() && now.Sub(fl.FirstFlaggedAt) >= c.FlagResetWindow {
		fl.ClearFlags()
	}

	flagged := func() {
		if fl.FirstFlaggedAt.IsZero() {
			fl.FirstFlaggedAt = now
		}
	}
	deny := func(reason data.Reason) data.Outcome {
		return data.Outcome{Result: data.TemporarilyDeny, Reason: reason}
	}

	sinceLastSeen := now.Sub(fl.LastSeenAt)

	if c.Filters.Referer && sinceLastSeen > c.RefererCheckInterval && id.Referer == "" {
		fl.EmptyReferer++
		flagged()
		if fl.EmptyReferer > c.UnusualQuota.Referer {
			return deny(data.ReasonEmptyReferer)
		}
	}

	if c.Filters.Session && sinceLastSeen > c.SessionCheckInterval && id.SessionID != fl.SessionID {
		fl.MultiSession++
		flagged()
		if fl.MultiSession > c.UnusualQuota.Session {
			return deny(data.ReasonTooManySessions)
		}
	}

	if c.Filters.Cookie {
		if id.JSCookie == c.JSCookieValue {
			fl.CookiePageviews++
		} else {
			fl.MissingJSCookie++
			flagged()
		}

		if fl.MissingJSCookie > c.UnusualQuota.Cookie {
			return deny(data.ReasonEmptyJSCookie)
		}
		if fl.CookiePageviews > c.UnusualQuota.Cookie {
			fl.CookiePageviews = 0
			fl.MissingJSCookie = 0
			outcome.ClearJSCookie = true
		}
	}

	if c.Filters.Frequency {
		var expired [data.NumTimeUnits]bool

		for _, u := range data.TimeUnits {
			w := &fl.Windows[u]
			if now.Sub(w.StartedAt) >= time.Duration(u.Seconds()+1)*time.Second {
				expired[u] = true
				continue
			}

			w.Pageviews++
			if w.Pageviews > f.quota(u) {
				return deny(u.LimitReason())
			}
		}

		// expired windows start over with the current request
		for _, u := range data.TimeUnits {
			if expired[u] {
				fl.Windows[u] = data.Counter{Pageviews: 1, StartedAt: now}
			}
		}
	}

	return outcome
}

func (f *Filter) quota(u data.TimeUnit) int {
	switch u {
	case data.Minute:
		return f.config.Quota.Minute
	case data.Hour:
		return f.config.Quota.Hour
	case data.Day:
		return f.config.Quota.Day
	}
	return f.config.Quota.Second
}
