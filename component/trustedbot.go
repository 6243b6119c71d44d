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
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
)

var errUnresolved = errors.New("hostname could not be resolved")

// Robot describes a crawler that is allowed when it comes from one of its
// own hostnames
type Robot struct {
	// UserAgent is matched case insensitively anywhere in the user agent
	UserAgent string
	// Suffixes are the domains the crawler's reverse hostnames end with
	Suffixes []string
	Reason   data.Reason
}

// DefaultRobots are the search engines and social networks trusted out of the box
var DefaultRobots = map[string]Robot{
	"google": {
		UserAgent: "googlebot",
		Suffixes:  []string{".googlebot.com", ".google.com"},
		Reason:    data.ReasonGoogle,
	},
	"bing": {
		UserAgent: "bingbot",
		Suffixes:  []string{".search.msn.com"},
		Reason:    data.ReasonBing,
	},
	"yahoo": {
		UserAgent: "yahoo! slurp",
		Suffixes:  []string{".crawl.yahoo.net"},
		Reason:    data.ReasonYahoo,
	},
	"baidu": {
		UserAgent: "baiduspider",
		Suffixes:  []string{".crawl.baidu.com", ".crawl.baidu.jp"},
		Reason:    data.ReasonSearchEngine,
	},
	"yandex": {
		UserAgent: "yandex",
		Suffixes:  []string{".yandex.ru", ".yandex.net", ".yandex.com"},
		Reason:    data.ReasonSearchEngine,
	},
	"facebook": {
		UserAgent: "facebookexternalhit",
		Suffixes:  []string{".fbsv.net"},
		Reason:    data.ReasonSocialNetwork,
	},
	"twitter": {
		UserAgent: "twitterbot",
		Suffixes:  []string{".twttr.com"},
		Reason:    data.ReasonSocialNetwork,
	},
}

// TrustedBot allows well known crawlers and denies clients that only pretend
// to be one. A crawler is verified by forward-confirmed reverse DNS.
type TrustedBot struct {
	strict   int32
	robots   map[string]Robot
	mutex    sync.RWMutex
	resolver Resolver
}

// NewTrustedBot creates the component with the default robots
func NewTrustedBot(resolver Resolver) *TrustedBot {
	tb := &TrustedBot{
		robots:   make(map[string]Robot),
		resolver: resolver,
	}
	for name, r := range DefaultRobots {
		tb.AddRobot(name, r)
	}
	return tb
}

// Name returns "trustedbot"
func (tb *TrustedBot) Name() string {
	return "trustedbot"
}

// SetStrict makes lookup failures count as fake robots
func (tb *TrustedBot) SetStrict(strict bool) {
	var v int32
	if strict {
		v = 1
	}
	atomic.StoreInt32(&tb.strict, v)
}

// IsStrict reports whether the component is in strict mode
func (tb *TrustedBot) IsStrict() bool {
	return atomic.LoadInt32(&tb.strict) == 1
}

// AddRobot adds or replaces a robot
func (tb *TrustedBot) AddRobot(name string, r Robot) {
	r.UserAgent = strings.ToLower(r.UserAgent)

	tb.mutex.Lock()
	tb.robots[name] = r
	tb.mutex.Unlock()
}

// RemoveRobot stops trusting a robot
func (tb *TrustedBot) RemoveRobot(name string) {
	tb.mutex.Lock()
	delete(tb.robots, name)
	tb.mutex.Unlock()
}

// IsAllowed reports whether the identity is a verified crawler and the reason
// its rule is written with
func (tb *TrustedBot) IsAllowed(id *data.Identity) (bool, data.Reason) {
	robot, claimed := tb.claimedRobot(id)
	if !claimed {
		return false, data.ReasonNone
	}

	ok, err := tb.verify(id, robot)
	if err != nil || !ok {
		return false, data.ReasonNone
	}
	return true, robot.Reason
}

// IsFakeRobot reports whether the identity claims to be a trusted crawler but
// doesn't come from one of its hosts
func (tb *TrustedBot) IsFakeRobot(id *data.Identity) bool {
	robot, claimed := tb.claimedRobot(id)
	if !claimed {
		return false
	}

	ok, err := tb.verify(id, robot)
	if err != nil {
		log.Tracef("trustedbot: %s claims to be %s: %s", id.IP, robot.UserAgent, err)
		return atomic.LoadInt32(&tb.strict) == 1
	}
	return !ok
}

// IsDenied is IsFakeRobot
func (tb *TrustedBot) IsDenied(id *data.Identity) bool {
	return tb.IsFakeRobot(id)
}

// DenyReason returns component-trusted-robot
func (tb *TrustedBot) DenyReason() data.Reason {
	return data.ReasonComponentTrustedRobot
}

func (tb *TrustedBot) claimedRobot(id *data.Identity) (Robot, bool) {
	ua := strings.ToLower(id.UserAgent)
	if ua == "" {
		return Robot{}, false
	}

	tb.mutex.RLock()
	defer tb.mutex.RUnlock()

	for _, r := range tb.robots {
		if strings.Contains(ua, r.UserAgent) {
			return r, true
		}
	}
	return Robot{}, false
}

// verify checks the hostname suffix first and forward-confirms the hostname after that
func (tb *TrustedBot) verify(id *data.Identity, r Robot) (bool, error) {
	host := strings.ToLower(strings.TrimSuffix(id.RDNS, "."))
	if host == "" || host == id.IP {
		return false, errUnresolved
	}

	suffixMatch := false
	for _, s := range r.Suffixes {
		if strings.HasSuffix(host, s) {
			suffixMatch = true
			break
		}
	}
	if !suffixMatch {
		return false, nil
	}

	if tb.resolver == nil {
		return false, errUnresolved
	}
	return tb.resolver.Confirm(id.IP, host)
}
