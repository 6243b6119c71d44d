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
	"net/http"
	"sort"
	"time"

	"github.com/fvbock/endless"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

// API provides the HTTP REST API for botgate
type API struct {
	firewall *Firewall
	router   *gin.Engine
	config   *config.Config
	ctx      context.Context
}

// NewAPI creates the admin API. It listens on config.APIAddress unless that is empty.
func NewAPI(ctx context.Context, config *config.Config, firewall *Firewall) *API {
	a := &API{
		config:   config,
		ctx:      ctx,
		firewall: firewall,
	}

	a.routes()

	if config.APIAddress != "" {
		go a.run()
	}

	return a
}

// Handler returns the router
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() {
	a.router = gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	a.router.Use(cors.New(corsConfig))

	a.router.GET("/status", a.getStatus)
	a.router.GET("/rules", a.getRules)
	a.router.GET("/rules/:ip", a.getRule)
	a.router.PUT("/rules/:ip", a.banIP)
	a.router.DELETE("/rules/:ip", a.unbanIP)
	a.router.GET("/filter/:ip", a.getFilterLog)
	a.router.GET("/sessions", a.getSessions)
	a.router.GET("/stats", a.getStats)
	a.router.GET("/recent", a.getRecent)
	a.router.POST("/data-circle/reset", a.resetDataCircle)
}

func (a *API) run() {
	log.Infof("admin api listening on %s", a.config.APIAddress)
	if err := endless.ListenAndServe(a.config.APIAddress, a.router); err != nil {
		log.Errorf("admin api on %s stopped: %s", a.config.APIAddress, err)
	}
}

func (a *API) getStatus(c *gin.Context) {
	now := a.firewall.resources.Clock()

	c.JSON(http.StatusOK, gin.H{
		"started_at":     a.firewall.startedAt,
		"uptime":         now.Sub(a.firewall.startedAt).Round(time.Second).String(),
		"enabled_checks": a.firewall.EnabledChecks(),
		"properties":     a.firewall.Properties(),
		"stats":          a.firewall.stats.Totals(),
	})
}

func (a *API) getRules(c *gin.Context) {
	rules, err := a.firewall.Rules()
	if err != nil {
		log.Errorf("failed to load all rules: %s", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load all rules"})
		return
	}

	if c.Query("sort") == "attempts" {
		sort.Slice(rules, func(i, j int) bool {
			return rules[i].Attempts > rules[j].Attempts
		})
	} else {
		sort.Slice(rules, func(i, j int) bool {
			return rules[i].JudgedAt.After(rules[j].JudgedAt)
		})
	}

	c.JSON(http.StatusOK, rules)
}

func (a *API) getRule(c *gin.Context) {
	ip, ok := a.ipParam(c)
	if !ok {
		return
	}

	rule, err := a.firewall.Rule(ip)
	if a.abortOnError(c, ip, err) {
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (a *API) banIP(c *gin.Context) {
	ip, ok := a.ipParam(c)
	if !ok {
		return
	}

	var body struct {
		Reason data.Reason `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := a.firewall.Ban(ip, body.Reason); err != nil {
		log.Errorf("failed to ban %s: %s", ip, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to ban %s", ip)})
		return
	}

	rule, err := a.firewall.Rule(ip)
	if a.abortOnError(c, ip, err) {
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (a *API) unbanIP(c *gin.Context) {
	ip, ok := a.ipParam(c)
	if !ok {
		return
	}

	if err := a.firewall.Unban(ip); err != nil {
		log.Errorf("failed to unban %s: %s", ip, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to unban %s", ip)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip": ip, "action": data.ActionUnban.String()})
}

func (a *API) getFilterLog(c *gin.Context) {
	ip, ok := a.ipParam(c)
	if !ok {
		return
	}

	fl, err := a.firewall.FilterLog(ip)
	if a.abortOnError(c, ip, err) {
		return
	}
	c.JSON(http.StatusOK, fl)
}

func (a *API) getSessions(c *gin.Context) {
	sessions, err := a.firewall.Sessions()
	if err != nil {
		log.Errorf("failed to load sessions: %s", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load sessions"})
		return
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessionComparator(sessions[i], sessions[j]) < 0
	})
	c.JSON(http.StatusOK, sessions)
}

func (a *API) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"totals":  a.firewall.stats.Totals(),
		"windows": a.firewall.stats.All(),
	})
}

func (a *API) getRecent(c *gin.Context) {
	c.JSON(http.StatusOK, a.firewall.recent.Decisions())
}

func (a *API) resetDataCircle(c *gin.Context) {
	if err := a.firewall.ResetDataCircle(); err != nil {
		log.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to reset the data circle"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (a *API) ipParam(c *gin.Context) (string, bool) {
	ip := net.ParseIP(c.Param("ip"))
	if ip == nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("%s is not a valid IP address", c.Param("ip"))})
		return "", false
	}
	return ip.String(), true
}

func (a *API) abortOnError(c *gin.Context, ip string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("nothing found for %s", ip)})
	default:
		log.Errorf("store error for %s: %s", ip, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to load %s", ip)})
	}
	return true
}
