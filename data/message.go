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

// ActionRecord is one line of the action log
type ActionRecord struct {
	IP         string    `json:"ip"`
	SessionID  string    `json:"session_id"`
	ActionCode int       `json:"action_code"`
	Reason     Reason    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// HandleType tells a notification receiver what the escalation did
type HandleType int

// Escalation handle types
const (
	HandleNone HandleType = iota
	HandleEscalatedToDeny
	HandleSystemFirewall
)

func (h HandleType) String() string {
	switch h {
	case HandleEscalatedToDeny:
		return "escalated to permanent deny"
	case HandleSystemFirewall:
		return "submitted to system firewall"
	}
	return "none"
}

// Notification is sent to the messengers when a denied IP keeps coming back
type Notification struct {
	IP         string     `json:"ip"`
	Hostname   string     `json:"hostname"`
	HandleType HandleType `json:"handle_type"`
	Handle     string     `json:"handle"`
	Action     Action     `json:"type"`
	Reason     Reason     `json:"reason"`
	Attempts   int        `json:"attempts"`
	Time       time.Time  `json:"time"`
}
