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
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
)

// IdentityResolver builds the identity of the client behind an HTTP request
type IdentityResolver struct {
	config *config.Config
}

// NewIdentityResolver creates an IdentityResolver
func NewIdentityResolver(config *config.Config) *IdentityResolver {
	return &IdentityResolver{
		config: config,
	}
}

// Resolve extracts the identity from r. Clients without a session cookie get
// a new session id and NewSession is set.
func (ir *IdentityResolver) Resolve(r *http.Request) *data.Identity {
	id := &data.Identity{
		IP:        ir.clientIP(r),
		Path:      r.URL.Path,
		Host:      r.Host,
		Method:    r.Method,
		Referer:   r.Referer(),
		UserAgent: r.UserAgent(),
		Header:    r.Header,
	}

	if c, err := r.Cookie(ir.config.SessionCookieName); err == nil && c.Value != "" {
		id.SessionID = c.Value
	} else {
		id.SessionID = uuid.New().String()
		id.NewSession = true
	}

	if c, err := r.Cookie(ir.config.JSCookieName); err == nil {
		id.JSCookie = c.Value
	}

	return id
}

// clientIP returns the remote address or, behind a trusted proxy, the first
// address of X-Forwarded-For and then X-Real-IP
func (ir *IdentityResolver) clientIP(r *http.Request) string {
	if ir.config.TrustForwardedFor {
		if ip := proxyIP(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// proxyIP returns the first valid client address a proxy reported or "" when
// there is none
func proxyIP(xff, realIP string) string {
	if xff != "" {
		if ip := parseHostIP(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	return parseHostIP(realIP)
}

// parseHostIP parses an IP that may carry a port
func parseHostIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}
