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

// Action is the verdict stored in a Rule
type Action int

// Rule actions. ActionUnban is never persisted, it only shows up in the action log
const (
	ActionDeny            Action = 0
	ActionAllow           Action = 1
	ActionTemporarilyDeny Action = 2
	ActionUnban           Action = 9
)

func (a Action) String() string {
	switch a {
	case ActionDeny:
		return "deny"
	case ActionAllow:
		return "allow"
	case ActionTemporarilyDeny:
		return "temporarily-deny"
	case ActionUnban:
		return "unban"
	}
	return fmt.Sprintf("action-%d", int(a))
}

// Result is the per-request verdict of the firewall
type Result int

// Results share their numeric values with the matching Actions
const (
	Deny              Result = 0
	Allow             Result = 1
	TemporarilyDeny   Result = 2
	SessionQueueLimit Result = 3
)

func (r Result) String() string {
	switch r {
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	case TemporarilyDeny:
		return "temporarily-deny"
	case SessionQueueLimit:
		return "session-queue-limit"
	}
	return fmt.Sprintf("result-%d", int(r))
}

// ResultFor maps a rule action onto the result a request gets for it
func ResultFor(a Action) Result {
	switch a {
	case ActionAllow:
		return Allow
	case ActionTemporarilyDeny:
		return TemporarilyDeny
	}
	return Deny
}

// Outcome is what the firewall answers for a single request.
// ClearJSCookie asks the HTTP layer to expire the JS cookie; SessionOrder and
// SessionQueue are only set when session admission was applied.
type Outcome struct {
	Result        Result `json:"result"`
	Reason        Reason `json:"reason"`
	ClearJSCookie bool   `json:"clear_js_cookie,omitempty"`
	SessionOrder  int    `json:"session_order,omitempty"`
	SessionQueue  int    `json:"session_queue,omitempty"`
}

// Allowed is a shortcut for o.Result == Allow
func (o Outcome) Allowed() bool {
	return o.Result == Allow
}

// LogCode is the code written to the action log
type LogCode int

// Action log codes. Rule actions (ban/unban from the admin surface) are logged
// with their Action value.
const (
	LogLimit     LogCode = 3
	LogPageview  LogCode = 11
	LogBlacklist LogCode = 98
	LogCaptcha   LogCode = 99
)

// LogCodeFor returns the action log code for a request result
func LogCodeFor(r Result) LogCode {
	switch r {
	case Allow:
		return LogPageview
	case Deny:
		return LogBlacklist
	case SessionQueueLimit:
		return LogLimit
	}
	return LogCaptcha
}
