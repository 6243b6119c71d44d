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

package main

import (
	"context"
	"fmt"

	"github.com/namsral/flag"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

func main() {
	dbdir := flag.String("dir", "", "badger db dir")
	table := flag.String("table", "", "only dump this table")

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewBadgerDriver(ctx, *dbdir)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	for _, t := range store.Tables {
		if *table != "" && string(t) != *table {
			continue
		}

		err := db.Each(t, func(key string, value []byte) {
			fmt.Printf("%s\t%s\t%s\n", t, key, value)
		})
		if err != nil {
			log.Fatalf("%s: %s", t, err)
		}
	}
}
