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

package store

import (
	"context"
	"fmt"
)

// Driver names accepted by Open
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
)

// Options selects and configures a driver
type Options struct {
	Driver        string
	BadgerPath    string
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the driver named in opts
func Open(ctx context.Context, opts Options) (Driver, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryDriver(), nil
	case DriverBadger:
		if opts.BadgerPath == "" {
			return nil, fmt.Errorf("driver %s needs a data directory", opts.Driver)
		}
		return NewBadgerDriver(ctx, opts.BadgerPath)
	case DriverBolt:
		if opts.BoltPath == "" {
			return nil, fmt.Errorf("driver %s needs a file path", opts.Driver)
		}
		return NewBoltDriver(opts.BoltPath)
	case DriverRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("driver %s needs an address", opts.Driver)
		}
		return NewRedisDriver(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
