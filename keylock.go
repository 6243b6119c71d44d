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
	"hash/fnv"
	"sync"
)

const keyLockStripes = 256

// keyLock serializes work on the same key while different keys mostly proceed
// in parallel. Keys are hashed onto a fixed number of mutexes.
type keyLock struct {
	stripes []sync.Mutex
}

func newKeyLock(stripes int) *keyLock {
	if stripes < 1 {
		stripes = 1
	}
	return &keyLock{
		stripes: make([]sync.Mutex, stripes),
	}
}

// lock locks the stripe of key and returns the matching unlock function
func (kl *keyLock) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))

	m := &kl.stripes[h.Sum32()%uint32(len(kl.stripes))]
	m.Lock()
	return m.Unlock
}
