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

package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is returned by Validate for every unusable setting
var ErrInvalid = errors.New("invalid configuration")

// Quota holds the pageview limit for every time unit of the frequency filter
type Quota struct {
	Second int
	Minute int
	Hour   int
	Day    int
}

// UnusualQuota limits how often an IP may show unusual behavior before it gets denied
type UnusualQuota struct {
	Cookie  int
	Session int
	Referer int
}

// Filters toggles the checks of the behavioral filter
type Filters struct {
	Frequency bool
	Referer   bool
	Session   bool
	Cookie    bool
}

// Escalation is a pair of switches for the two escalation targets
type Escalation struct {
	DataCircle     bool
	SystemFirewall bool
}

// Buffer is the number of attempts tolerated before an escalation fires
type Buffer struct {
	DataCircle     int
	SystemFirewall int
}

// SessionLimit caps the number of concurrently admitted sessions
type SessionLimit struct {
	Count  int
	Period time.Duration
}

// Config contains all configurable bits and pieces the botgate application needs
// The configuration gets passed on to all parts of the application that need to access it
type Config struct {
	// decision kernel
	Filters              Filters
	Quota                Quota
	UnusualQuota         UnusualQuota
	RefererCheckInterval time.Duration
	SessionCheckInterval time.Duration
	FlagResetWindow      time.Duration
	DetectionPeriod      time.Duration
	AttemptResetWindow   time.Duration
	DenyAttempt          Escalation
	Buffer               Buffer
	Notify               Escalation
	SessionLimit         SessionLimit
	SessionGCRatio       float64
	ExcludedURLs         []string
	ExcludeStaticAssets  bool
	StrictComponents     []string
	TrustForwardedFor    bool

	// cookies
	JSCookieName      string
	JSCookieValue     string
	SessionCookieName string
	CookieDomain      string
	CaptchaCookieName string
	CookieKey         string
	CookieSecret      string

	// storage
	StoreDriver   string
	BadgerPath    string
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// collaborators
	DNSServer         string
	ResolverTTL       time.Duration
	ResolverTries     int
	ResolverTimeout   time.Duration
	ASNDBFile         string
	IPRulesTOML       string
	ActionLogFile     string
	SystemFirewallDir string
	NatsAddr          string
	NatsPort          int
	NatsHTTPPort      int
	NatsUser          string
	NatsPassword      string
	NatsURL           string
	NotifySubject     string
	NotifyRate        float64
	NotifyQueue       int

	// surfaces
	APIAddress     string
	SocketFile     string
	LogReplay      string
	LogFormat      string
	LogLevel       string
	LogMemoryStats bool
	StatsWindow    time.Duration
	StatsWindows   int
	KeepRecent     int
}

// Defaults returns a configuration with the stock values of all kernel settings
func Defaults() *Config {
	return &Config{
		Filters: Filters{
			Frequency: true,
			Referer:   true,
			Session:   true,
			Cookie:    false,
		},
		Quota: Quota{
			Second: 2,
			Minute: 10,
			Hour:   30,
			Day:    60,
		},
		UnusualQuota: UnusualQuota{
			Cookie:  5,
			Session: 5,
			Referer: 10,
		},
		RefererCheckInterval: 5 * time.Second,
		SessionCheckInterval: 5 * time.Second,
		FlagResetWindow:      3600 * time.Second,
		DetectionPeriod:      5 * time.Second,
		AttemptResetWindow:   1800 * time.Second,
		DenyAttempt:          Escalation{},
		Buffer: Buffer{
			DataCircle:     10,
			SystemFirewall: 10,
		},
		Notify: Escalation{},
		SessionLimit: SessionLimit{
			Count:  0,
			Period: 300 * time.Second,
		},
		SessionGCRatio: 0.01,

		JSCookieName:      "ssjd",
		JSCookieValue:     "1",
		SessionCookieName: "botgate_session",
		CaptchaCookieName: "botgate_captcha",

		StoreDriver: "memory",
		RedisPrefix: "botgate:",

		DNSServer:       "8.8.8.8:53",
		ResolverTTL:     24 * time.Hour,
		ResolverTries:   2,
		ResolverTimeout: 2 * time.Second,

		NotifySubject: "botgate.notifications",
		NotifyRate:    1,
		NotifyQueue:   100,

		LogFormat:    "combined",
		LogLevel:     "info",
		StatsWindow:  time.Minute,
		StatsWindows: 60,
		KeepRecent:   1000,
	}
}

// Validate checks all settings the kernel relies on
func (c *Config) Validate() error {
	if c.Filters.Frequency {
		q := c.Quota
		if q.Second <= 0 || q.Minute <= 0 || q.Hour <= 0 || q.Day <= 0 {
			return fmt.Errorf("%w: frequency quotas must be positive, got %+v", ErrInvalid, q)
		}
	}

	if c.UnusualQuota.Cookie < 0 || c.UnusualQuota.Session < 0 || c.UnusualQuota.Referer < 0 {
		return fmt.Errorf("%w: unusual behavior quotas must not be negative", ErrInvalid)
	}

	durations := map[string]time.Duration{
		"referer check interval": c.RefererCheckInterval,
		"session check interval": c.SessionCheckInterval,
		"flag reset window":      c.FlagResetWindow,
		"detection period":       c.DetectionPeriod,
		"attempt reset window":   c.AttemptResetWindow,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}

	if c.DenyAttempt.DataCircle && c.Buffer.DataCircle <= 0 {
		return fmt.Errorf("%w: data circle buffer must be positive", ErrInvalid)
	}
	if c.DenyAttempt.SystemFirewall && c.Buffer.SystemFirewall <= 0 {
		return fmt.Errorf("%w: system firewall buffer must be positive", ErrInvalid)
	}

	if c.SessionLimit.Count < 0 {
		return fmt.Errorf("%w: session limit must not be negative", ErrInvalid)
	}
	if c.SessionLimit.Count > 0 && c.SessionLimit.Period <= 0 {
		return fmt.Errorf("%w: session period must be positive when sessions are limited", ErrInvalid)
	}
	if c.SessionGCRatio < 0 || c.SessionGCRatio > 1 {
		return fmt.Errorf("%w: session gc ratio %f is not within [0,1]", ErrInvalid, c.SessionGCRatio)
	}

	if c.Filters.Cookie && (c.JSCookieName == "" || c.JSCookieValue == "") {
		return fmt.Errorf("%w: the cookie filter needs a cookie name and value", ErrInvalid)
	}

	return nil
}
