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
)

// headers every real browser sends
var browserHeaders = []string{"Accept", "Accept-Language", "Accept-Encoding"}

// Header denies clients by their request headers
type Header struct {
	strict int32
	denied patterns
}

// NewHeader creates a lenient header component without deny patterns
func NewHeader() *Header {
	return &Header{}
}

// Name returns "header"
func (h *Header) Name() string {
	return "header"
}

// SetStrict makes the component deny clients that don't send the usual browser headers
func (h *Header) SetStrict(strict bool) {
	var v int32
	if strict {
		v = 1
	}
	atomic.StoreInt32(&h.strict, v)
}

// IsStrict reports whether the component is in strict mode
func (h *Header) IsStrict() bool {
	return atomic.LoadInt32(&h.strict) == 1
}

// AddDeniedPattern adds a regexp that is matched against every "Name: value" header line
func (h *Header) AddDeniedPattern(pattern string) error {
	return h.denied.add(pattern)
}

// IsDenied checks the headers of the identity
func (h *Header) IsDenied(id *data.Identity) bool {
	if atomic.LoadInt32(&h.strict) == 1 {
		for _, name := range browserHeaders {
			if id.Header.Get(name) == "" {
				return true
			}
		}
	}

	if h.denied.len() == 0 {
		return false
	}

	for name, values := range id.Header {
		for _, v := range values {
			if h.denied.match(name + ": " + v) {
				return true
			}
		}
	}

	return false
}

// DenyReason returns component-header
func (h *Header) DenyReason() data.Reason {
	return data.ReasonComponentHeader
}
