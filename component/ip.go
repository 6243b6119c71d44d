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

package component

import (
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml"
	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
	fsnotify "gopkg.in/fsnotify.v1"
)

// ASNLookuper finds the autonomous system an IP belongs to. *asndb.DB implements it.
type ASNLookuper interface {
	Lookup(ip net.IP) *asndb.ASN
}

// IPRules is the layout of the IP rules file
type IPRules struct {
	DenyAll  bool      `toml:"deny_all"`
	Allow    []IPRule  `toml:"allow"`
	Deny     []IPRule  `toml:"deny"`
	AllowASN []ASNRule `toml:"allow_asn"`
	DenyASN  []ASNRule `toml:"deny_asn"`
}

// IPRule matches a single IP or a CIDR. When URL is set the rule only applies
// to requests whose path starts with it.
type IPRule struct {
	Pattern     string `toml:"pattern"`
	URL         string `toml:"url"`
	Description string `toml:"description"`
}

// ASNRule matches all IPs of an autonomous system
type ASNRule struct {
	ASN         int    `toml:"asn"`
	Description string `toml:"description"`
}

type networkRule struct {
	network     *net.IPNet
	url         string
	description string
}

type compiledRules struct {
	denyAll  bool
	allow    []networkRule
	deny     []networkRule
	allowASN map[int]string
	denyASN  map[int]string
}

// IP allows and denies clients by their IP address, their network or their
// autonomous system
type IP struct {
	mutex     sync.RWMutex
	manual    IPRules
	file      IPRules
	rules     compiledRules
	asndb     ASNLookuper
	rulesFile string
	UpdatedAt time.Time
	ctx       context.Context
}

// NewIP creates the IP component. asn may be nil. When rulesFile is not empty
// the rules are loaded from it and reloaded whenever the file changes.
func NewIP(ctx context.Context, asn ASNLookuper, rulesFile string) (*IP, error) {
	c := &IP{
		asndb:     asn,
		rulesFile: rulesFile,
		ctx:       ctx,
	}

	if rulesFile == "" {
		return c, c.compile()
	}

	if err := c.Load(); err != nil {
		return nil, err
	}
	if err := c.reloadOnChanges(); err != nil {
		return nil, err
	}

	return c, nil
}

// Name returns "ip"
func (c *IP) Name() string {
	return "ip"
}

// SetStrict is a no-op, the IP component decides on rules only
func (c *IP) SetStrict(bool) {}

// IsStrict is always false
func (c *IP) IsStrict() bool {
	return false
}

// Allow adds an allow rule for an IP or CIDR, optionally limited to a URL prefix
func (c *IP) Allow(pattern, url string) error {
	rule := IPRule{Pattern: pattern, URL: url}
	if _, err := compileNetworks([]IPRule{rule}); err != nil {
		return err
	}

	c.mutex.Lock()
	c.manual.Allow = append(c.manual.Allow, rule)
	c.mutex.Unlock()
	return c.compile()
}

// Deny adds a deny rule for an IP or CIDR, optionally limited to a URL prefix
func (c *IP) Deny(pattern, url string) error {
	rule := IPRule{Pattern: pattern, URL: url}
	if _, err := compileNetworks([]IPRule{rule}); err != nil {
		return err
	}

	c.mutex.Lock()
	c.manual.Deny = append(c.manual.Deny, rule)
	c.mutex.Unlock()
	return c.compile()
}

// DenyAll denies every IP that isn't explicitly allowed
func (c *IP) DenyAll(deny bool) {
	c.mutex.Lock()
	c.manual.DenyAll = deny
	c.rules.denyAll = deny || c.file.DenyAll
	c.mutex.Unlock()
}

// Load reads the rules file
func (c *IP) Load() error {
	content, err := ioutil.ReadFile(c.rulesFile)
	if err != nil {
		return err
	}

	var rules IPRules
	if err := toml.Unmarshal(content, &rules); err != nil {
		return fmt.Errorf("can't parse ip rules %s: %w", c.rulesFile, err)
	}

	c.mutex.Lock()
	previous := c.file
	c.file = rules
	c.mutex.Unlock()

	if err := c.compile(); err != nil {
		c.mutex.Lock()
		c.file = previous
		c.mutex.Unlock()
		return err
	}

	log.Infof("ip rules loaded from %s: %d allow, %d deny, %d asn", c.rulesFile, len(rules.Allow), len(rules.Deny), len(rules.AllowASN)+len(rules.DenyASN))
	return nil
}

// Check returns the decision for the identity's IP. Allow rules take precedence
// over deny rules, explicit rules over ASN rules.
func (c *IP) Check(id *data.Identity) (data.Action, data.Reason, bool) {
	ip := net.ParseIP(id.IP)
	if ip == nil {
		return data.ActionDeny, data.ReasonInvalidIP, true
	}

	c.mutex.RLock()
	rules := c.rules
	c.mutex.RUnlock()

	if matchNetworks(rules.allow, ip, id.Path) {
		return data.ActionAllow, data.ReasonAllowIP, true
	}
	if matchNetworks(rules.deny, ip, id.Path) {
		return data.ActionDeny, data.ReasonDenyIP, true
	}

	if c.asndb != nil && (len(rules.allowASN) > 0 || len(rules.denyASN) > 0) {
		if asn := c.asndb.Lookup(ip); asn != nil {
			if _, ok := rules.allowASN[asn.ASN]; ok {
				return data.ActionAllow, data.ReasonAllowIP, true
			}
			if _, ok := rules.denyASN[asn.ASN]; ok {
				return data.ActionDeny, data.ReasonDenyIP, true
			}
		}
	}

	if rules.denyAll {
		return data.ActionDeny, data.ReasonDenyIP, true
	}

	return data.ActionAllow, data.ReasonNone, false
}

// IsDenied reports whether a deny rule matches
func (c *IP) IsDenied(id *data.Identity) bool {
	action, _, ok := c.Check(id)
	return ok && action == data.ActionDeny
}

// DenyReason returns component-ip
func (c *IP) DenyReason() data.Reason {
	return data.ReasonComponentIP
}

func matchNetworks(rules []networkRule, ip net.IP, path string) bool {
	for _, r := range rules {
		if r.url != "" && !strings.HasPrefix(path, r.url) {
			continue
		}
		if r.network.Contains(ip) {
			return true
		}
	}
	return false
}

// compile merges the manual and the file rules
func (c *IP) compile() error {
	c.mutex.RLock()
	manual, file := c.manual, c.file
	c.mutex.RUnlock()

	allow, err := compileNetworks(append(append([]IPRule{}, manual.Allow...), file.Allow...))
	if err != nil {
		return err
	}
	deny, err := compileNetworks(append(append([]IPRule{}, manual.Deny...), file.Deny...))
	if err != nil {
		return err
	}

	rules := compiledRules{
		denyAll:  manual.DenyAll || file.DenyAll,
		allow:    allow,
		deny:     deny,
		allowASN: make(map[int]string),
		denyASN:  make(map[int]string),
	}
	for _, r := range file.AllowASN {
		rules.allowASN[r.ASN] = r.Description
	}
	for _, r := range file.DenyASN {
		rules.denyASN[r.ASN] = r.Description
	}

	c.mutex.Lock()
	c.rules = rules
	c.UpdatedAt = time.Now()
	c.mutex.Unlock()

	return nil
}

func compileNetworks(rules []IPRule) ([]networkRule, error) {
	res := make([]networkRule, 0, len(rules))

	for _, r := range rules {
		pattern := strings.TrimSpace(r.Pattern)

		var network *net.IPNet
		if strings.Contains(pattern, "/") {
			_, n, err := net.ParseCIDR(pattern)
			if err != nil {
				return nil, fmt.Errorf("can't parse CIDR %s (%s): %w", r.Pattern, r.Description, err)
			}
			network = n
		} else {
			ip := net.ParseIP(pattern)
			if ip == nil {
				return nil, fmt.Errorf("%s (%s) is neither an IP nor a CIDR", r.Pattern, r.Description)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}

		res = append(res, networkRule{
			network:     network,
			url:         r.URL,
			description: r.Description,
		})
	}

	return res, nil
}

func (c *IP) reloadOnChanges() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("couldn't start the ip rules watcher: %w", err)
	}

	if err := watcher.Add(c.rulesFile); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-c.ctx.Done():
				log.Infof("ip rules watcher exiting")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := c.Load(); err != nil {
						log.Warnf("failed to reload ip rules, keeping the previous ones: %s", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("ip rules watcher error: %s", err)
			}
		}
	}()

	return nil
}
