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

import "fmt"

// Reason explains why a rule was written or an outcome was returned.
// The numeric values are stable: they end up in the store, the action log and
// in notifications.
type Reason int

// Allow reasons
const (
	ReasonNone          Reason = 0
	ReasonSearchEngine  Reason = 100
	ReasonGoogle        Reason = 101
	ReasonBing          Reason = 102
	ReasonYahoo         Reason = 103
	ReasonSocialNetwork Reason = 110
	ReasonFacebook      Reason = 111
	ReasonTwitter       Reason = 112
	ReasonAllowIP       Reason = 42
)

// Deny reasons
const (
	ReasonTooManySessions       Reason = 1
	ReasonEmptyJSCookie         Reason = 3
	ReasonEmptyReferer          Reason = 4
	ReasonReachedLimitDay       Reason = 11
	ReasonReachedLimitHour      Reason = 12
	ReasonReachedLimitMinute    Reason = 13
	ReasonReachedLimitSecond    Reason = 14
	ReasonInvalidIP             Reason = 40
	ReasonDenyIP                Reason = 41
	ReasonComponentIP           Reason = 81
	ReasonComponentRdns         Reason = 82
	ReasonComponentHeader       Reason = 83
	ReasonComponentUserAgent    Reason = 84
	ReasonComponentTrustedRobot Reason = 85
	ReasonManualBan             Reason = 99
)

var reasonNames = map[Reason]string{
	ReasonNone:                  "none",
	ReasonSearchEngine:          "is-search-engine",
	ReasonGoogle:                "is-google",
	ReasonBing:                  "is-bing",
	ReasonYahoo:                 "is-yahoo",
	ReasonSocialNetwork:         "is-social-network",
	ReasonFacebook:              "is-facebook",
	ReasonTwitter:               "is-twitter",
	ReasonAllowIP:               "allow-ip",
	ReasonTooManySessions:       "too-many-sessions",
	ReasonEmptyJSCookie:         "empty-js-cookie",
	ReasonEmptyReferer:          "empty-referer",
	ReasonReachedLimitDay:       "reached-limit-day",
	ReasonReachedLimitHour:      "reached-limit-hour",
	ReasonReachedLimitMinute:    "reached-limit-minute",
	ReasonReachedLimitSecond:    "reached-limit-second",
	ReasonInvalidIP:             "invalid-ip",
	ReasonDenyIP:                "deny-ip",
	ReasonComponentIP:           "component-ip",
	ReasonComponentRdns:         "component-rdns",
	ReasonComponentHeader:       "component-header",
	ReasonComponentUserAgent:    "component-useragent",
	ReasonComponentTrustedRobot: "component-trusted-robot",
	ReasonManualBan:             "manual-ban",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason-%d", int(r))
}

// IsAllowReason reports whether r is one of the reasons a rule is allowed for
func (r Reason) IsAllowReason() bool {
	switch r {
	case ReasonSearchEngine, ReasonGoogle, ReasonBing, ReasonYahoo,
		ReasonSocialNetwork, ReasonFacebook, ReasonTwitter, ReasonAllowIP:
		return true
	}
	return false
}

// IsDenyReason reports whether r is a reason a request can be denied for
func (r Reason) IsDenyReason() bool {
	return r != ReasonNone && !r.IsAllowReason() && reasonNames[r] != ""
}
