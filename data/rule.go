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

// Rule is a persisted verdict for a single IP
type Rule struct {
	IP       string    `json:"log_ip"`
	Hostname string    `json:"ip_resolve"`
	JudgedAt time.Time `json:"time"`
	Action   Action    `json:"type"`
	Reason   Reason    `json:"reason"`
	Attempts int       `json:"attempts"`
}

// NewRule creates a fresh rule with the attempt counter at 0
func NewRule(ip, hostname string, action Action, reason Reason, now time.Time) *Rule {
	return &Rule{
		IP:       ip,
		Hostname: hostname,
		JudgedAt: now,
		Action:   action,
		Reason:   reason,
		Attempts: 0,
	}
}
