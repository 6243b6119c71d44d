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
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDriver keeps every table in one redis hash so that several firewall
// nodes can share their rules and counters
type RedisDriver struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	ctx     context.Context
}

// NewRedisDriver connects to the redis server at addr. All hashes are named
// prefix + table.
func NewRedisDriver(ctx context.Context, addr, password string, db int, prefix string) *RedisDriver {
	return &RedisDriver{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix:  prefix,
		timeout: 2 * time.Second,
		ctx:     ctx,
	}
}

// Init checks the connection. Hashes are created on first write.
func (rd *RedisDriver) Init(autoCreate bool) error {
	ctx, cancel := rd.opContext()
	defer cancel()

	return rd.client.Ping(ctx).Err()
}

// Get returns the value stored for key
func (rd *RedisDriver) Get(table Table, key string) ([]byte, error) {
	hash, err := rd.hash(table)
	if err != nil {
		return nil, err
	}

	ctx, cancel := rd.opContext()
	defer cancel()

	value, err := rd.client.HGet(ctx, hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return value, err
}

// Save stores value for key
func (rd *RedisDriver) Save(table Table, key string, value []byte) error {
	hash, err := rd.hash(table)
	if err != nil {
		return err
	}

	ctx, cancel := rd.opContext()
	defer cancel()

	return rd.client.HSet(ctx, hash, key, value).Err()
}

// Delete removes key from the table
func (rd *RedisDriver) Delete(table Table, key string) error {
	hash, err := rd.hash(table)
	if err != nil {
		return err
	}

	ctx, cancel := rd.opContext()
	defer cancel()

	return rd.client.HDel(ctx, hash, key).Err()
}

// All returns all values of a table
func (rd *RedisDriver) All(table Table) ([][]byte, error) {
	hash, err := rd.hash(table)
	if err != nil {
		return nil, err
	}

	ctx, cancel := rd.opContext()
	defer cancel()

	values, err := rd.client.HVals(ctx, hash).Result()
	if err != nil {
		return nil, err
	}

	res := make([][]byte, len(values))
	for i, v := range values {
		res[i] = []byte(v)
	}
	return res, nil
}

// Rebuild deletes all table hashes
func (rd *RedisDriver) Rebuild() error {
	ctx, cancel := rd.opContext()
	defer cancel()

	keys := make([]string, len(Tables))
	for i, t := range Tables {
		keys[i] = rd.prefix + string(t)
	}
	return rd.client.Del(ctx, keys...).Err()
}

// Close closes the redis client
func (rd *RedisDriver) Close() error {
	return rd.client.Close()
}

func (rd *RedisDriver) hash(table Table) (string, error) {
	if !validTable(table) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return rd.prefix + string(table), nil
}

func (rd *RedisDriver) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(rd.ctx, rd.timeout)
}
