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
	"context"

	nats "github.com/nats-io/nats.go"
	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Notifier delivers escalation notifications
type Notifier interface {
	Notify(n data.Notification) error
}

// NatsNotifier publishes notifications as JSON on a NATS subject
type NatsNotifier struct {
	jsonc   *nats.EncodedConn
	subject string
}

// NewNatsNotifier creates a notifier that publishes on subject
func NewNatsNotifier(nc *nats.Conn, subject string) (*NatsNotifier, error) {
	jsonc, err := nats.NewEncodedConn(nc, nats.JSON_ENCODER)
	if err != nil {
		return nil, err
	}

	return &NatsNotifier{
		jsonc:   jsonc,
		subject: subject,
	}, nil
}

// Notify publishes n
func (nn *NatsNotifier) Notify(n data.Notification) error {
	return nn.jsonc.Publish(nn.subject, n)
}

// dispatcher hands notifications to a Notifier on its own goroutine.
// A full queue drops notifications instead of blocking the request.
type dispatcher struct {
	notifier Notifier
	queue    chan data.Notification
	limiter  *rate.Limiter
	ctx      context.Context
}

func newDispatcher(ctx context.Context, notifier Notifier, size int, perSecond float64) *dispatcher {
	if size < 1 {
		size = 1
	}

	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	d := &dispatcher{
		notifier: notifier,
		queue:    make(chan data.Notification, size),
		limiter:  rate.NewLimiter(limit, 1),
		ctx:      ctx,
	}

	go d.run()

	return d
}

// dispatch enqueues n and reports whether it was accepted
func (d *dispatcher) dispatch(n data.Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		log.Warnf("notification queue is full: dropping notification for %s (%s)", n.IP, n.HandleType)
		return false
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.ctx.Done():
			log.Tracef("notification dispatcher exiting")
			return
		case n := <-d.queue:
			if err := d.limiter.Wait(d.ctx); err != nil {
				return
			}
			if err := d.notifier.Notify(n); err != nil {
				log.Warnf("failed to send notification for %s: %s", n.IP, err)
			}
		}
	}
}
