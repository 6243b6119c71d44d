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
	"sync/atomic"

	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
)

// DefaultDeniedHostnames are reverse hostnames denied out of the box
var DefaultDeniedHostnames = []string{
	`\.webcrawler\.link$`,
}

// Rdns denies clients by their reverse DNS hostname
type Rdns struct {
	strict   int32
	denied   patterns
	resolver Resolver
}

// NewRdns creates a lenient reverse DNS component. resolver is used in strict
// mode to confirm that the hostname resolves back to the IP and may be nil.
func NewRdns(resolver Resolver) *Rdns {
	r := &Rdns{resolver: resolver}
	for _, p := range DefaultDeniedHostnames {
		r.denied.add(p)
	}
	return r
}

// Name returns "rdns"
func (r *Rdns) Name() string {
	return "rdns"
}

// SetStrict makes the component deny clients whose hostname is missing or
// doesn't resolve back to their IP
func (r *Rdns) SetStrict(strict bool) {
	var v int32
	if strict {
		v = 1
	}
	atomic.StoreInt32(&r.strict, v)
}

// IsStrict reports whether the component is in strict mode
func (r *Rdns) IsStrict() bool {
	return atomic.LoadInt32(&r.strict) == 1
}

// AddDeniedPattern adds a case insensitive hostname regexp
func (r *Rdns) AddDeniedPattern(pattern string) error {
	return r.denied.add(pattern)
}

// IsDenied checks the reverse hostname of the identity
func (r *Rdns) IsDenied(id *data.Identity) bool {
	unresolved := id.RDNS == "" || id.RDNS == id.IP

	if !unresolved && r.denied.match(id.RDNS) {
		return true
	}

	if atomic.LoadInt32(&r.strict) == 0 {
		return false
	}

	if unresolved {
		return true
	}

	if r.resolver == nil {
		return false
	}

	ok, err := r.resolver.Confirm(id.IP, id.RDNS)
	if err != nil {
		log.Tracef("rdns: failed to confirm %s for %s: %s", id.RDNS, id.IP, err)
		return true
	}
	return !ok
}

// DenyReason returns component-rdns
func (r *Rdns) DenyReason() data.Reason {
	return data.ReasonComponentRdns
}
