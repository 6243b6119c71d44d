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

package botgate

import (
	"time"

	"github.com/scraperwall/botgate/component"
	"github.com/scraperwall/botgate/store"
)

// Resources are the collaborators a Firewall works with. Only Store is required.
type Resources struct {
	Store          *store.Store
	ActionLog      ActionLogger
	Notifier       Notifier
	SystemFirewall SystemFirewall
	Resolver       component.Resolver
	Components     []component.Component

	// Clock returns the current time. It defaults to time.Now.
	Clock func() time.Time
}

// NewResources creates Resources backed by the given store
func NewResources(s *store.Store) *Resources {
	return &Resources{
		Store:      s,
		Components: make([]component.Component, 0),
		Clock:      time.Now,
	}
}
