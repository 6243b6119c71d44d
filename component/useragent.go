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
	"strings"
	"sync/atomic"

	"github.com/scraperwall/botgate/data"
)

// DefaultDeniedUserAgents are tools and SEO crawlers that are denied out of the box
var DefaultDeniedUserAgents = []string{
	`ahrefs`,
	`semrush`,
	`mj12bot`,
	`dotbot`,
	`megaindex`,
	`moz\.com`,
	`findlinks`,
	`archive\.org`,
	`^python-requests/`,
	`^curl/`,
	`^wget/`,
}

// UserAgent denies clients by their user agent
type UserAgent struct {
	strict int32
	denied patterns
}

// NewUserAgent creates a lenient user agent component with the default deny patterns
func NewUserAgent() *UserAgent {
	ua := &UserAgent{}
	for _, p := range DefaultDeniedUserAgents {
		ua.denied.add(p)
	}
	return ua
}

// Name returns "useragent"
func (ua *UserAgent) Name() string {
	return "useragent"
}

// SetStrict makes the component deny clients without a user agent
func (ua *UserAgent) SetStrict(strict bool) {
	var v int32
	if strict {
		v = 1
	}
	atomic.StoreInt32(&ua.strict, v)
}

// IsStrict reports whether the component is in strict mode
func (ua *UserAgent) IsStrict() bool {
	return atomic.LoadInt32(&ua.strict) == 1
}

// AddDeniedPattern adds a case insensitive user agent regexp
func (ua *UserAgent) AddDeniedPattern(pattern string) error {
	return ua.denied.add(pattern)
}

// IsDenied checks the user agent of the identity
func (ua *UserAgent) IsDenied(id *data.Identity) bool {
	agent := strings.TrimSpace(id.UserAgent)
	if agent == "" {
		return atomic.LoadInt32(&ua.strict) == 1
	}

	return ua.denied.match(agent)
}

// DenyReason returns component-useragent
func (ua *UserAgent) DenyReason() data.Reason {
	return data.ReasonComponentUserAgent
}
