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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
)

// Gate puts the firewall in front of an HTTP handler. Deny, Captcha and
// Queue render the pages for the respective results, nil handlers answer
// with a bare status code.
type Gate struct {
	firewall   *Firewall
	identities *IdentityResolver
	config     *config.Config
	Deny       http.Handler
	Captcha    http.Handler
	Queue      http.Handler
}

// NewGate creates a gate for the firewall
func NewGate(config *config.Config, firewall *Firewall) *Gate {
	return &Gate{
		firewall:   firewall,
		identities: NewIdentityResolver(config),
		config:     config,
	}
}

// Wrap returns a handler that only passes allowed requests on to next
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.pass(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// HandlerFunc is the gin variant of Wrap
func (g *Gate) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.pass(c.Writer, c.Request) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// pass evaluates r and writes the answer for everything but Allow
func (g *Gate) pass(w http.ResponseWriter, r *http.Request) bool {
	id := g.identities.Resolve(r)

	outcome, err := g.firewall.Evaluate(id)
	if err != nil {
		log.Errorf("failed to evaluate %s: %s", id.IP, err)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return false
	}

	g.setCookies(w, id, outcome)

	switch outcome.Result {
	case data.Allow:
		return true
	case data.TemporarilyDeny:
		g.render(w, r, g.Captcha, http.StatusForbidden)
	case data.SessionQueueLimit:
		w.Header().Set("X-Session-Queue", strconv.Itoa(outcome.SessionQueue))
		w.Header().Set("Retry-After", strconv.Itoa(int(g.config.SessionLimit.Period.Seconds())))
		g.render(w, r, g.Queue, http.StatusServiceUnavailable)
	default:
		g.render(w, r, g.Deny, http.StatusForbidden)
	}
	return false
}

func (g *Gate) setCookies(w http.ResponseWriter, id *data.Identity, outcome data.Outcome) {
	if id.NewSession {
		http.SetCookie(w, &http.Cookie{
			Name:     g.config.SessionCookieName,
			Value:    id.SessionID,
			Path:     "/",
			Domain:   g.config.CookieDomain,
			HttpOnly: true,
		})
	}

	if outcome.ClearJSCookie {
		http.SetCookie(w, &http.Cookie{
			Name:   g.config.JSCookieName,
			Value:  "",
			Path:   "/",
			Domain: g.config.CookieDomain,
			MaxAge: -1,
		})
	}
}

func (g *Gate) render(w http.ResponseWriter, r *http.Request, h http.Handler, status int) {
	if h != nil {
		h.ServeHTTP(w, r)
		return
	}
	http.Error(w, http.StatusText(status), status)
}
