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

import "time"

// TimeUnit is one of the four granularities the frequency filter counts pageviews in
type TimeUnit int

// Time units in ascending granularity
const (
	Second TimeUnit = iota
	Minute
	Hour
	Day

	NumTimeUnits = 4
)

// TimeUnits lists all units in the order the frequency check walks them
var TimeUnits = [NumTimeUnits]TimeUnit{Second, Minute, Hour, Day}

// Seconds returns the window length of the unit
func (u TimeUnit) Seconds() int64 {
	switch u {
	case Minute:
		return 60
	case Hour:
		return 3600
	case Day:
		return 86400
	}
	return 1
}

// LimitReason is the deny reason used when the unit's quota is exceeded
func (u TimeUnit) LimitReason() Reason {
	switch u {
	case Minute:
		return ReasonReachedLimitMinute
	case Hour:
		return ReasonReachedLimitHour
	case Day:
		return ReasonReachedLimitDay
	}
	return ReasonReachedLimitSecond
}

func (u TimeUnit) String() string {
	switch u {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	}
	return "second"
}

// Counter counts pageviews within one window of a time unit
type Counter struct {
	Pageviews int       `json:"pageviews"`
	StartedAt time.Time `json:"first_time"`
}

// FilterLog holds the behavioral counters of an IP that has no rule yet
type FilterLog struct {
	IP         string    `json:"ip"`
	SessionID  string    `json:"session"`
	Hostname   string    `json:"hostname"`
	LastSeenAt time.Time `json:"last_time"`

	Windows [NumTimeUnits]Counter `json:"windows"`

	EmptyReferer    int       `json:"flag_empty_referer"`
	MultiSession    int       `json:"flag_multi_session"`
	MissingJSCookie int       `json:"flag_js_cookie"`
	CookiePageviews int       `json:"pageviews_cookie"`
	FirstFlaggedAt  time.Time `json:"first_time_flag"`
}

// NewFilterLog creates the entry for an IP seen for the first time.
// Every window starts now and already counts the current pageview.
func NewFilterLog(ip, sessionID, hostname string, now time.Time) *FilterLog {
	fl := &FilterLog{
		IP:         ip,
		SessionID:  sessionID,
		Hostname:   hostname,
		LastSeenAt: now,
	}
	for _, u := range TimeUnits {
		fl.Windows[u] = Counter{Pageviews: 1, StartedAt: now}
	}
	return fl
}

// ClearFlags resets the unusual behavior flags
func (fl *FilterLog) ClearFlags() {
	fl.EmptyReferer = 0
	fl.MultiSession = 0
	fl.MissingJSCookie = 0
	fl.FirstFlaggedAt = time.Time{}
}
