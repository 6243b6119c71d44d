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
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSystemFirewall is returned when an IP should be submitted to the
// system firewall but none is configured
var ErrNoSystemFirewall = errors.New("no system firewall configured")

// QueueFileName is the file inside the watched directory commands are appended to
const QueueFileName = "iptables_queue.log"

// SystemFirewall takes IPs that are denied on the network level
type SystemFirewall interface {
	Submit(ip string) error
}

// QueueFirewall appends deny commands to a queue file that a privileged
// watcher turns into iptables rules
type QueueFirewall struct {
	filename string
	mutex    sync.Mutex
}

// NewQueueFirewall creates a queue firewall writing into dir
func NewQueueFirewall(dir string) (*QueueFirewall, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	return &QueueFirewall{
		filename: filepath.Join(dir, QueueFileName),
	}, nil
}

// Submit queues a deny-all command for ip
func (qf *QueueFirewall) Submit(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return fmt.Errorf("%q is not an ip address", ip)
	}

	version := 6
	if parsed.To4() != nil {
		version = 4
	}

	qf.mutex.Lock()
	defer qf.mutex.Unlock()

	fh, err := os.OpenFile(qf.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(fh, "add,%d,%s,null,all,all,deny\n", version, parsed); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
