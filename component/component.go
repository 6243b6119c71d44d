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

package component

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/scraperwall/botgate/data"
)

// Component is a boolean check the firewall runs for clients without a rule.
// Implementations must be safe for concurrent use: all per-request state comes
// in through the identity.
type Component interface {
	Name() string
	SetStrict(strict bool)
	IsStrict() bool
	IsDenied(id *data.Identity) bool
	DenyReason() data.Reason
}

// BotVerifier is a component that recognizes legitimate crawlers and clients
// pretending to be one
type BotVerifier interface {
	Component
	IsAllowed(id *data.Identity) (bool, data.Reason)
	IsFakeRobot(id *data.Identity) bool
}

// IPChecker is a component with explicit allow and deny decisions for IPs.
// ok is false when no rule matched.
type IPChecker interface {
	Component
	Check(id *data.Identity) (action data.Action, reason data.Reason, ok bool)
}

// Resolver is the DNS surface the components need
type Resolver interface {
	Reverse(ip string) (string, error)
	Confirm(ip, host string) (bool, error)
}

// patterns is a concurrency safe list of case insensitive regexps
type patterns struct {
	mutex sync.RWMutex
	list  []*regexp.Regexp
}

func (p *patterns) add(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("can't parse pattern %s: %w", pattern, err)
	}

	p.mutex.Lock()
	p.list = append(p.list, re)
	p.mutex.Unlock()
	return nil
}

func (p *patterns) match(s string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	for _, re := range p.list {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func (p *patterns) len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return len(p.list)
}
