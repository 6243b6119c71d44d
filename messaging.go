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
	"errors"
	"fmt"
	"net"
	"time"

	natsd "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	"github.com/scraperwall/botgate/config"
	log "github.com/sirupsen/logrus"
)

type natsAuth struct {
	User     string
	Password string
}

func (na *natsAuth) Check(c natsd.ClientAuthentication) bool {
	return c.GetOpts().Username == na.User && c.GetOpts().Password == na.Password
}

// Messaging is the NATS connection notifications are published on. Without
// config.NatsURL an embedded NATS server is started as well.
type Messaging struct {
	Server *natsd.Server
	Conn   *nats.Conn
	ctx    context.Context
}

// NewMessaging connects to NATS. Everything is shut down when ctx is done.
func NewMessaging(ctx context.Context, config *config.Config) (*Messaging, error) {
	var err error

	m := &Messaging{
		ctx: ctx,
	}

	natsURL := config.NatsURL
	if natsURL == "" {
		host := config.NatsAddr
		if host == "" {
			host = "127.0.0.1"
		}

		nopts := &natsd.Options{
			Host:     host,
			HTTPPort: config.NatsHTTPPort,
			Port:     config.NatsPort,
			CustomClientAuthentication: &natsAuth{
				User:     config.NatsUser,
				Password: config.NatsPassword,
			},
			MaxConn: 1 << 12,
			NoLog:   true,
			NoSigs:  true,
		}

		m.Server, err = natsd.NewServer(nopts)
		if err != nil {
			return nil, err
		}
		go m.Server.Start()
		if !m.Server.ReadyForConnections(2 * time.Second) {
			m.Server.Shutdown()
			return nil, errors.New("nats server failed to startup")
		}

		port := config.NatsPort
		if addr, ok := m.Server.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		natsURL = fmt.Sprintf("nats://%s/", net.JoinHostPort(host, fmt.Sprint(port)))
	}

	natsErrorFunc := func(c *nats.Conn, s *nats.Subscription, err error) {
		if s == nil {
			log.Warnf("nats error: %s", err)
			return
		}
		pnum, psize, _ := s.Pending()
		dropped, _ := s.Dropped()
		log.Warnf("nats error: %s drop: %d / pend: %d/%d / err: %v", s.Subject, dropped, pnum, psize, err)
	}

	m.Conn, err = nats.Connect(natsURL, nats.ErrorHandler(natsErrorFunc), nats.UserInfo(config.NatsUser, config.NatsPassword))
	if err != nil {
		if m.Server != nil {
			m.Server.Shutdown()
		}
		return nil, err
	}
	log.Infof("connected to nats at %s", m.Conn.ConnectedUrl())

	go m.autoClose()

	return m, nil
}

func (m *Messaging) autoClose() {
	<-m.ctx.Done()
	log.Infof("closing nats connection")
	m.Conn.Close()
	if m.Server != nil {
		m.Server.Shutdown()
	}
}
