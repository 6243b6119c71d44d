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
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/namsral/flag"
	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/botgate"
	"github.com/scraperwall/botgate/component"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/resolver"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

func main() {
	config := config.Defaults()

	var excludedURLs, strictComponents string

	flag.BoolVar(&config.Filters.Frequency, "filter-frequency", config.Filters.Frequency, "limit the pageviews per IP")
	flag.BoolVar(&config.Filters.Referer, "filter-referer", config.Filters.Referer, "count requests without referer")
	flag.BoolVar(&config.Filters.Session, "filter-session", config.Filters.Session, "count session changes of an IP")
	flag.BoolVar(&config.Filters.Cookie, "filter-cookie", config.Filters.Cookie, "count requests without JS cookie")
	flag.IntVar(&config.Quota.Second, "quota-second", config.Quota.Second, "pageviews allowed per second")
	flag.IntVar(&config.Quota.Minute, "quota-minute", config.Quota.Minute, "pageviews allowed per minute")
	flag.IntVar(&config.Quota.Hour, "quota-hour", config.Quota.Hour, "pageviews allowed per hour")
	flag.IntVar(&config.Quota.Day, "quota-day", config.Quota.Day, "pageviews allowed per day")
	flag.IntVar(&config.UnusualQuota.Referer, "unusual-referer", config.UnusualQuota.Referer, "requests without referer before an IP is denied")
	flag.IntVar(&config.UnusualQuota.Session, "unusual-session", config.UnusualQuota.Session, "session changes before an IP is denied")
	flag.IntVar(&config.UnusualQuota.Cookie, "unusual-cookie", config.UnusualQuota.Cookie, "requests without JS cookie before an IP is denied")
	flag.DurationVar(&config.RefererCheckInterval, "referer-check-interval", config.RefererCheckInterval, "requests closer than this skip the referer check")
	flag.DurationVar(&config.SessionCheckInterval, "session-check-interval", config.SessionCheckInterval, "requests closer than this skip the session check")
	flag.DurationVar(&config.FlagResetWindow, "flag-reset-window", config.FlagResetWindow, "forget the unusual behaviour of an IP after this long")
	flag.DurationVar(&config.DetectionPeriod, "detection-period", config.DetectionPeriod, "repeated attempts within this period count towards escalation")
	flag.DurationVar(&config.AttemptResetWindow, "attempt-reset-window", config.AttemptResetWindow, "reset the attempt counter of a rule after this long")
	flag.BoolVar(&config.DenyAttempt.DataCircle, "escalate-data-circle", config.DenyAttempt.DataCircle, "turn repeated temporary denies into permanent denies")
	flag.BoolVar(&config.DenyAttempt.SystemFirewall, "escalate-system-firewall", config.DenyAttempt.SystemFirewall, "submit repeatedly denied IPs to the system firewall")
	flag.IntVar(&config.Buffer.DataCircle, "buffer-data-circle", config.Buffer.DataCircle, "attempts before a temporary deny becomes permanent")
	flag.IntVar(&config.Buffer.SystemFirewall, "buffer-system-firewall", config.Buffer.SystemFirewall, "attempts before a denied IP goes to the system firewall")
	flag.BoolVar(&config.Notify.DataCircle, "notify-data-circle", config.Notify.DataCircle, "notify when a temporary deny becomes permanent")
	flag.BoolVar(&config.Notify.SystemFirewall, "notify-system-firewall", config.Notify.SystemFirewall, "notify when an IP goes to the system firewall")
	flag.IntVar(&config.SessionLimit.Count, "session-limit", config.SessionLimit.Count, "number of concurrent sessions, 0 for no limit")
	flag.DurationVar(&config.SessionLimit.Period, "session-period", config.SessionLimit.Period, "a session is active this long after its last request")
	flag.Float64Var(&config.SessionGCRatio, "session-gc-ratio", config.SessionGCRatio, "share of requests that remove expired sessions")
	flag.StringVar(&excludedURLs, "excluded-urls", "", "comma separated path prefixes the firewall ignores")
	flag.BoolVar(&config.ExcludeStaticAssets, "exclude-static-assets", config.ExcludeStaticAssets, "ignore requests for images, scripts and stylesheets")
	flag.StringVar(&strictComponents, "strict", "", "comma separated names of the components that run in strict mode")
	flag.BoolVar(&config.TrustForwardedFor, "trust-xff", config.TrustForwardedFor, "take the client IP from X-Forwarded-For")

	flag.StringVar(&config.JSCookieName, "js-cookie-name", config.JSCookieName, "the name of the JS cookie")
	flag.StringVar(&config.JSCookieValue, "js-cookie-value", config.JSCookieValue, "the value of the JS cookie")
	flag.StringVar(&config.SessionCookieName, "session-cookie-name", config.SessionCookieName, "the name of the session cookie")
	flag.StringVar(&config.CookieDomain, "cookie-domain", config.CookieDomain, "the domain of all cookies")
	flag.StringVar(&config.CaptchaCookieName, "captcha-cookie-name", config.CaptchaCookieName, "the name of the captcha cookie")
	flag.StringVar(&config.CookieKey, "cookie-key", config.CookieKey, "base64 encoded AES-256 key of the captcha cookie")
	flag.StringVar(&config.CookieSecret, "cookie-secret", config.CookieSecret, "the secret inside the captcha cookie")

	flag.StringVar(&config.StoreDriver, "store", config.StoreDriver, "the store driver: memory, badger, bolt or redis")
	flag.StringVar(&config.BadgerPath, "badger-path", "./badger", "the directory where the badger database resides")
	flag.StringVar(&config.BoltPath, "bolt-path", "./botgate.db", "the bolt database file")
	flag.StringVar(&config.RedisAddr, "redis-addr", "127.0.0.1:6379", "the redis server")
	flag.StringVar(&config.RedisPassword, "redis-password", "", "the redis password")
	flag.IntVar(&config.RedisDB, "redis-db", 0, "the redis database")
	flag.StringVar(&config.RedisPrefix, "redis-prefix", config.RedisPrefix, "prefix of all redis keys")

	flag.StringVar(&config.DNSServer, "dns-server", config.DNSServer, "the DNS server to use")
	flag.DurationVar(&config.ResolverTTL, "resolver-ttl", config.ResolverTTL, "cache DNS answers this long")
	flag.IntVar(&config.ResolverTries, "resolver-tries", config.ResolverTries, "try a DNS query this many times before giving up")
	flag.DurationVar(&config.ResolverTimeout, "resolver-timeout", config.ResolverTimeout, "timeout of a single DNS query")
	flag.StringVar(&config.ASNDBFile, "asndb", "", "the ASN database for ASN rules")
	flag.StringVar(&config.IPRulesTOML, "ip-rules", "", "TOML file with allow and deny rules for IPs and ASNs")
	flag.StringVar(&config.ActionLogFile, "action-log", "", "write the action log into this file")
	flag.StringVar(&config.SystemFirewallDir, "system-firewall-dir", "", "directory of the system firewall queue file")
	flag.StringVar(&config.NatsAddr, "nats-addr", "127.0.0.1", "bind NATS to this IP")
	flag.IntVar(&config.NatsPort, "nats-port", 4223, "the port on which NATS listens")
	flag.IntVar(&config.NatsHTTPPort, "nats-http-port", 0, "the HTTP port on which NATS listens")
	flag.StringVar(&config.NatsUser, "nats-user", "scw", "the NATS user")
	flag.StringVar(&config.NatsPassword, "nats-password", "scw", "the NATS password")
	flag.StringVar(&config.NatsURL, "nats-url", "", "connect to this NATS server instead of starting one")
	flag.StringVar(&config.NotifySubject, "notify-subject", config.NotifySubject, "publish notifications on this NATS subject")
	flag.Float64Var(&config.NotifyRate, "notify-rate", config.NotifyRate, "notifications per second")
	flag.IntVar(&config.NotifyQueue, "notify-queue", config.NotifyQueue, "queued notifications before new ones are dropped")

	flag.StringVar(&config.APIAddress, "api", ":8765", "the address of the admin API, empty to disable it")
	flag.StringVar(&config.SocketFile, "socket", "", "answer web servers on this unix socket")
	flag.StringVar(&config.LogReplay, "replay", "", "replay this access log and exit")
	flag.StringVar(&config.LogFormat, "log-format", config.LogFormat, "the access log format of the replay")
	flag.StringVar(&config.LogLevel, "loglevel", config.LogLevel, "the log level")
	flag.BoolVar(&config.LogMemoryStats, "memstats", false, "log memory statistics")
	flag.DurationVar(&config.StatsWindow, "stats-window", config.StatsWindow, "size of one statistics window")
	flag.IntVar(&config.StatsWindows, "stats-windows", config.StatsWindows, "number of statistics windows")
	flag.IntVar(&config.KeepRecent, "keep-recent", config.KeepRecent, "keep this many most recent decisions")

	flag.Parse()

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	config.ExcludedURLs = append(config.ExcludedURLs, splitList(excludedURLs)...)
	config.StrictComponents = append(config.StrictComponents, splitList(strictComponents)...)

	ctx, cancel := context.WithCancel(context.Background())

	fw, err := newFirewall(ctx, config)
	if err != nil {
		log.Fatal(err)
	}

	if config.LogReplay != "" {
		report, err := fw.ReplayFile(config.LogReplay, config.LogFormat)
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("replay of %s: %d lines, %d skipped, %d allowed, %d captchas, %d denied, %d queued",
			config.LogReplay, report.Lines, report.Skipped,
			report.Results[data.Allow], report.Results[data.TemporarilyDeny], report.Results[data.Deny], report.Results[data.SessionQueueLimit])
		cancel()
		time.Sleep(100 * time.Millisecond)
		return
	}

	botgate.NewAPI(ctx, config, fw)

	if config.SocketFile != "" {
		if _, err := botgate.NewWebserverSocket(ctx, config, fw); err != nil {
			log.Fatal(err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Println("exiting...")
	cancel()

	// give the workers a moment to close their stores and sockets
	time.Sleep(500 * time.Millisecond)
}

func newFirewall(ctx context.Context, config *config.Config) (*botgate.Firewall, error) {
	driver, err := store.Open(ctx, store.Options{
		Driver:        config.StoreDriver,
		BadgerPath:    config.BadgerPath,
		BoltPath:      config.BoltPath,
		RedisAddr:     config.RedisAddr,
		RedisPassword: config.RedisPassword,
		RedisDB:       config.RedisDB,
		RedisPrefix:   config.RedisPrefix,
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		if err := driver.Close(); err != nil {
			log.Errorf("failed to close the store: %s", err)
		}
	}()

	resources := botgate.NewResources(store.New(driver))

	dnsResolver := resolver.New(ctx, config)
	resources.Resolver = dnsResolver

	var asn component.ASNLookuper
	if config.ASNDBFile != "" {
		db, err := asndb.New(config.ASNDBFile)
		if err != nil {
			return nil, err
		}
		log.Infof("asndb loaded with %d records", db.Size())
		asn = db
	}

	ipComponent, err := component.NewIP(ctx, asn, config.IPRulesTOML)
	if err != nil {
		return nil, err
	}

	resources.Components = []component.Component{
		component.NewTrustedBot(dnsResolver),
		ipComponent,
		component.NewHeader(),
		component.NewUserAgent(),
		component.NewRdns(dnsResolver),
	}
	for _, c := range resources.Components {
		c.SetStrict(contains(config.StrictComponents, c.Name()))
	}

	if config.ActionLogFile != "" {
		actionLog := botgate.NewFileActionLog(config.ActionLogFile)
		go func() {
			<-ctx.Done()
			actionLog.Close()
		}()
		resources.ActionLog = actionLog
	}

	if config.SystemFirewallDir != "" {
		resources.SystemFirewall, err = botgate.NewQueueFirewall(config.SystemFirewallDir)
		if err != nil {
			return nil, err
		}
	}

	if config.Notify.DataCircle || config.Notify.SystemFirewall {
		messaging, err := botgate.NewMessaging(ctx, config)
		if err != nil {
			return nil, err
		}
		resources.Notifier, err = botgate.NewNatsNotifier(messaging.Conn, config.NotifySubject)
		if err != nil {
			return nil, err
		}
	}

	return botgate.New(ctx, config, resources)
}

func splitList(list string) []string {
	var res []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}
