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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/scraperwall/botgate/component"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/store"
)

var base = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryActionLog struct {
	records []data.ActionRecord
	mutex   sync.Mutex
}

func (m *memoryActionLog) Add(rec data.ActionRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryActionLog) Records() []data.ActionRecord {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]data.ActionRecord{}, m.records...)
}

type channelNotifier chan data.Notification

func (c channelNotifier) Notify(n data.Notification) error {
	c <- n
	return nil
}

type recordingFirewall struct {
	ips   []string
	err   error
	mutex sync.Mutex
}

func (rf *recordingFirewall) Submit(ip string) error {
	rf.mutex.Lock()
	defer rf.mutex.Unlock()
	if rf.err != nil {
		return rf.err
	}
	rf.ips = append(rf.ips, ip)
	return nil
}

// spyComponent denies everything and counts how often it was asked
type spyComponent struct {
	calls int32
}

func (s *spyComponent) Name() string            { return "spy" }
func (s *spyComponent) SetStrict(bool)          {}
func (s *spyComponent) IsStrict() bool          { return false }
func (s *spyComponent) DenyReason() data.Reason { return data.ReasonComponentHeader }
func (s *spyComponent) IsDenied(*data.Identity) bool {
	atomic.AddInt32(&s.calls, 1)
	return true
}

// countingBot counts the verifications of a wrapped BotVerifier
type countingBot struct {
	component.BotVerifier
	calls int32
}

func (cb *countingBot) IsAllowed(id *data.Identity) (bool, data.Reason) {
	atomic.AddInt32(&cb.calls, 1)
	return cb.BotVerifier.IsAllowed(id)
}

type fakeResolver map[string]string

func (fr fakeResolver) Reverse(ip string) (string, error) {
	for host, hip := range fr {
		if hip == ip {
			return host, nil
		}
	}
	return "host-" + strings.Replace(ip, ".", "-", -1) + ".example.net", nil
}

func (fr fakeResolver) Confirm(ip, host string) (bool, error) {
	return fr[host] == ip, nil
}

var errDisk = errors.New("disk on fire")

// failingDriver fails every read of the rule table
type failingDriver struct {
	*store.MemoryDriver
}

func (fd failingDriver) Get(table store.Table, key string) ([]byte, error) {
	if table == store.RuleTable {
		return nil, errDisk
	}
	return fd.MemoryDriver.Get(table, key)
}

type testEnv struct {
	fw        *Firewall
	res       *Resources
	actionLog *memoryActionLog
	now       time.Time
	cancel    func()
}

func (te *testEnv) at(t time.Time) {
	te.now = t
}

func newTestEnv(t *testing.T, setup func(c *config.Config, r *Resources)) *testEnv {
	t.Helper()

	te := &testEnv{
		actionLog: &memoryActionLog{},
		now:       base,
	}

	c := config.Defaults()
	r := NewResources(store.New(store.NewMemoryDriver()))
	r.ActionLog = te.actionLog
	r.Clock = func() time.Time { return te.now }

	if setup != nil {
		setup(c, r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	te.cancel = cancel

	fw, err := New(ctx, c, r)
	if err != nil {
		t.Fatalf("failed to create the firewall: %s", err)
	}
	te.fw = fw
	te.res = r

	return te
}

func browser(ip, session string) *data.Identity {
	return &data.Identity{
		IP:        ip,
		SessionID: session,
		Path:      "/",
		Referer:   "https://www.example.com/",
		UserAgent: gofakeit.ChromeUserAgent(),
	}
}

func TestFirstRequest(t *testing.T) {
	te := newTestEnv(t, nil)
	defer te.cancel()

	outcome, err := te.fw.Evaluate(browser("10.0.0.1", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result != data.Allow {
		t.Errorf("the first request should be allowed but is %s", outcome.Result)
	}

	fl, err := te.fw.FilterLog("10.0.0.1")
	if err != nil {
		t.Fatalf("no filter log was created: %s", err)
	}
	for _, u := range data.TimeUnits {
		if !fl.Windows[u].StartedAt.Equal(base) {
			t.Errorf("the %s window starts at %s instead of %s", u, fl.Windows[u].StartedAt, base)
		}
	}

	if _, err := te.fw.Rule("10.0.0.1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("no rule should exist but Rule returned %v", err)
	}

	if recs := te.actionLog.Records(); len(recs) != 1 || recs[0].ActionCode != int(data.LogPageview) {
		t.Errorf("expected one pageview record but got %+v", recs)
	}
}

func TestFrequencyLimit(t *testing.T) {
	te := newTestEnv(t, nil)
	defer te.cancel()

	var outcome data.Outcome
	for i := 0; i < 3; i++ {
		te.at(base.Add(time.Duration(i) * 100 * time.Millisecond))

		var err error
		outcome, err = te.fw.Evaluate(browser("10.0.0.2", "s2"))
		if err != nil {
			t.Fatal(err)
		}
		if i < 2 && outcome.Result != data.Allow {
			t.Fatalf("request #%d should be allowed but is %s (%s)", i+1, outcome.Result, outcome.Reason)
		}
	}

	if outcome.Result != data.TemporarilyDeny || outcome.Reason != data.ReasonReachedLimitSecond {
		t.Fatalf("the third request should be %s/%s but is %s/%s", data.TemporarilyDeny, data.ReasonReachedLimitSecond, outcome.Result, outcome.Reason)
	}

	rule, err := te.fw.Rule("10.0.0.2")
	if err != nil {
		t.Fatalf("no rule was written: %s", err)
	}
	if rule.Action != data.ActionTemporarilyDeny || rule.Reason != data.ReasonReachedLimitSecond || rule.Attempts != 0 {
		t.Errorf("unexpected rule %+v", rule)
	}

	if _, err := te.fw.FilterLog("10.0.0.2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("the filter log should have been deleted but FilterLog returned %v", err)
	}

	recs := te.actionLog.Records()
	if len(recs) != 3 || recs[2].ActionCode != int(data.LogCaptcha) {
		t.Errorf("expected two pageviews and one captcha but got %+v", recs)
	}
}

func TestSystemFirewallEscalation(t *testing.T) {
	sysfw := &recordingFirewall{}
	notifications := make(channelNotifier, 10)

	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		c.DenyAttempt.SystemFirewall = true
		c.Buffer.SystemFirewall = 5
		c.DetectionPeriod = 5 * time.Second
		c.Notify.SystemFirewall = true
		r.SystemFirewall = sysfw
		r.Notifier = notifications
	})
	defer te.cancel()

	rule := data.NewRule("10.0.0.3", "", data.ActionDeny, data.ReasonDenyIP, base)
	rule.Attempts = 4
	if err := te.res.Store.SaveRule(rule); err != nil {
		t.Fatal(err)
	}

	te.at(base.Add(2 * time.Second))
	outcome, err := te.fw.Evaluate(browser("10.0.0.3", "s3"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result != data.Deny {
		t.Errorf("the request should be denied but is %s", outcome.Result)
	}

	rule, _ = te.fw.Rule("10.0.0.3")
	if rule.Attempts != 0 {
		t.Errorf("attempts should be reset to 0 but are %d", rule.Attempts)
	}
	if !rule.JudgedAt.Equal(te.now) {
		t.Errorf("the rule was judged at %s instead of %s", rule.JudgedAt, te.now)
	}

	if len(sysfw.ips) != 1 || sysfw.ips[0] != "10.0.0.3" {
		t.Errorf("10.0.0.3 should have been submitted once but the firewall got %v", sysfw.ips)
	}

	select {
	case n := <-notifications:
		if n.HandleType != data.HandleSystemFirewall || n.Attempts != 5 || n.IP != "10.0.0.3" {
			t.Errorf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Error("no notification was sent")
	}
}

func TestSystemFirewallFailureKeepsAttempts(t *testing.T) {
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		c.DenyAttempt.SystemFirewall = true
		c.Buffer.SystemFirewall = 2
		r.SystemFirewall = &recordingFirewall{err: errors.New("read-only file system")}
	})
	defer te.cancel()

	rule := data.NewRule("10.0.0.4", "", data.ActionDeny, data.ReasonManualBan, base)
	rule.Attempts = 1
	te.res.Store.SaveRule(rule)

	te.at(base.Add(time.Second))
	outcome, err := te.fw.Evaluate(browser("10.0.0.4", "s4"))
	if err != nil {
		t.Fatalf("a failing system firewall must not fail the request: %s", err)
	}
	if outcome.Result != data.Deny {
		t.Errorf("the request should be denied but is %s", outcome.Result)
	}

	rule, _ = te.fw.Rule("10.0.0.4")
	if rule.Attempts != 2 {
		t.Errorf("attempts should stay at 2 after a failed submission but are %d", rule.Attempts)
	}
}

func TestDataCircleEscalation(t *testing.T) {
	notifications := make(channelNotifier, 10)

	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		c.DenyAttempt.DataCircle = true
		c.Buffer.DataCircle = 3
		c.Notify.DataCircle = true
		r.Notifier = notifications
	})
	defer te.cancel()

	te.res.Store.SaveRule(data.NewRule("10.0.0.5", "", data.ActionTemporarilyDeny, data.ReasonEmptyReferer, base))

	want := []data.Result{data.TemporarilyDeny, data.TemporarilyDeny, data.Deny, data.Deny, data.Deny}
	for i, w := range want {
		te.at(base.Add(time.Duration(i+1) * time.Second))
		outcome, err := te.fw.Evaluate(browser("10.0.0.5", "s5"))
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Result != w {
			t.Errorf("request #%d should be %s but is %s", i+1, w, outcome.Result)
		}
	}

	rule, _ := te.fw.Rule("10.0.0.5")
	if rule.Action != data.ActionDeny || rule.Attempts != 0 {
		t.Errorf("the rule should be deny with 0 attempts but is %s with %d", rule.Action, rule.Attempts)
	}

	select {
	case n := <-notifications:
		if n.HandleType != data.HandleEscalatedToDeny {
			t.Errorf("unexpected handle type %s", n.HandleType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification was sent")
	}

	select {
	case n := <-notifications:
		t.Errorf("the escalation was notified twice: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAttemptsReset(t *testing.T) {
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		c.DenyAttempt.DataCircle = true
	})
	defer te.cancel()

	rule := data.NewRule("10.0.0.6", "", data.ActionTemporarilyDeny, data.ReasonEmptyReferer, base)
	rule.Attempts = 7
	te.res.Store.SaveRule(rule)

	te.at(base.Add(time.Hour))
	te.fw.Evaluate(browser("10.0.0.6", "s6"))

	rule, _ = te.fw.Rule("10.0.0.6")
	if rule.Attempts != 0 {
		t.Errorf("attempts should be reset after the reset window but are %d", rule.Attempts)
	}
}

func TestSessionLimit(t *testing.T) {
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		c.SessionLimit = config.SessionLimit{Count: 2, Period: 300 * time.Second}
	})
	defer te.cancel()

	want := []data.Result{data.Allow, data.Allow, data.SessionQueueLimit}
	ips := []string{"10.0.1.1", "10.0.1.2", "10.0.1.3"}
	sessions := []string{"S1", "S2", "S3"}

	for i := range ips {
		te.at(base.Add(time.Duration(i) * time.Second))
		outcome, err := te.fw.Evaluate(browser(ips[i], sessions[i]))
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Result != want[i] {
			t.Errorf("%s should be %s but is %s", sessions[i], want[i], outcome.Result)
		}
		if outcome.Result == data.SessionQueueLimit && (outcome.SessionOrder != 3 || outcome.SessionQueue != 1) {
			t.Errorf("S3 should be #3 and first in the queue but is #%d/%d", outcome.SessionOrder, outcome.SessionQueue)
		}
	}

	recs := te.actionLog.Records()
	if recs[2].ActionCode != int(data.LogLimit) {
		t.Errorf("the queued request was logged with %d instead of %d", recs[2].ActionCode, data.LogLimit)
	}
}

func TestTrustedBotShortCircuit(t *testing.T) {
	res := fakeResolver{"crawl-66-249-66-1.googlebot.com": "66.249.66.1"}
	bot := &countingBot{BotVerifier: component.NewTrustedBot(res)}

	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		r.Resolver = res
		r.Components = append(r.Components, bot)
	})
	defer te.cancel()

	id := func() *data.Identity {
		return &data.Identity{
			IP:        "66.249.66.1",
			Path:      "/",
			UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		}
	}

	outcome, err := te.fw.Evaluate(id())
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result != data.Allow || outcome.Reason != data.ReasonGoogle {
		t.Fatalf("googlebot should be allowed with is-google but got %s/%s", outcome.Result, outcome.Reason)
	}

	rule, err := te.fw.Rule("66.249.66.1")
	if err != nil || rule.Action != data.ActionAllow || rule.Hostname != "crawl-66-249-66-1.googlebot.com" {
		t.Fatalf("expected an allow rule for googlebot but got %+v (%v)", rule, err)
	}

	te.at(base.Add(time.Second))
	outcome, _ = te.fw.Evaluate(id())
	if outcome.Result != data.Allow {
		t.Errorf("the second googlebot request should be allowed but is %s", outcome.Result)
	}
	if n := atomic.LoadInt32(&bot.calls); n != 1 {
		t.Errorf("the trusted bot component was asked %d times instead of once", n)
	}

	// a fake googlebot gets a deny rule
	fake := id()
	fake.IP = "10.6.6.6"
	outcome, _ = te.fw.Evaluate(fake)
	if outcome.Result != data.Deny || outcome.Reason != data.ReasonComponentTrustedRobot {
		t.Errorf("a fake googlebot should be denied but got %s/%s", outcome.Result, outcome.Reason)
	}
}

func TestExcludedURLs(t *testing.T) {
	spy := &spyComponent{}
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		c.ExcludedURLs = []string{"/health", "/api/public/"}
		c.ExcludeStaticAssets = true
		r.Components = append(r.Components, spy)
	})
	defer te.cancel()

	for i, path := range []string{"/health", "/healthz", "/api/public/items", "/static/app.css", "/img/logo.png"} {
		for j := 0; j < 5; j++ {
			te.at(base.Add(time.Duration(i*5+j) * time.Millisecond))
			id := browser("10.0.0.7", "s7")
			id.Path = path

			outcome, err := te.fw.Evaluate(id)
			if err != nil {
				t.Fatal(err)
			}
			if outcome.Result != data.Allow {
				t.Errorf("%s should be allowed but is %s", path, outcome.Result)
			}
		}
	}

	if _, err := te.fw.Rule("10.0.0.7"); !errors.Is(err, store.ErrNotFound) {
		t.Error("an excluded URL must not write a rule")
	}
	if _, err := te.fw.FilterLog("10.0.0.7"); !errors.Is(err, store.ErrNotFound) {
		t.Error("an excluded URL must not write a filter log")
	}
	if n := len(te.actionLog.Records()); n != 0 {
		t.Errorf("an excluded URL must not be logged but %d records were written", n)
	}
	if spy.calls != 0 {
		t.Errorf("components were asked %d times for excluded URLs", spy.calls)
	}
}

func TestAllowRulePrecedence(t *testing.T) {
	spy := &spyComponent{}
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		r.Components = append(r.Components, spy)
	})
	defer te.cancel()

	te.res.Store.SaveRule(data.NewRule("10.0.0.8", "", data.ActionAllow, data.ReasonAllowIP, base))

	for i := 0; i < 20; i++ {
		te.at(base.Add(time.Duration(i) * time.Millisecond))
		outcome, err := te.fw.Evaluate(browser("10.0.0.8", "s8"))
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Result != data.Allow {
			t.Errorf("request #%d should be allowed but is %s", i, outcome.Result)
		}
	}

	if spy.calls != 0 {
		t.Errorf("the spy component was called %d times", spy.calls)
	}

	// without a rule the spy gets its say
	outcome, _ := te.fw.Evaluate(browser("10.0.0.9", "s9"))
	if outcome.Result != data.Deny || outcome.Reason != data.ReasonComponentHeader {
		t.Errorf("the spy should deny 10.0.0.9 but the outcome is %s/%s", outcome.Result, outcome.Reason)
	}
}

func TestIPComponent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ipc, err := component.NewIP(ctx, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	ipc.Allow("192.0.2.0/24", "")
	ipc.Deny("198.51.100.0/24", "")

	spy := &spyComponent{}
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		r.Components = append(r.Components, ipc, spy)
	})
	defer te.cancel()

	outcome, _ := te.fw.Evaluate(browser("192.0.2.10", "a"))
	if outcome.Result != data.Allow || outcome.Reason != data.ReasonAllowIP {
		t.Errorf("192.0.2.10 should be allowed by ip but got %s/%s", outcome.Result, outcome.Reason)
	}

	outcome, _ = te.fw.Evaluate(browser("198.51.100.10", "b"))
	if outcome.Result != data.Deny || outcome.Reason != data.ReasonDenyIP {
		t.Errorf("198.51.100.10 should be denied by ip but got %s/%s", outcome.Result, outcome.Reason)
	}

	if spy.calls != 0 {
		t.Errorf("components after the ip component were called %d times", spy.calls)
	}
}

func TestAtMostOneRecord(t *testing.T) {
	te := newTestEnv(t, nil)
	defer te.cancel()

	ips := make([]string, 10)
	for i := range ips {
		ips[i] = gofakeit.IPv4Address()
	}

	for i := 0; i < 300; i++ {
		te.at(base.Add(time.Duration(i) * 50 * time.Millisecond))
		ip := ips[gofakeit.Number(0, len(ips)-1)]

		id := browser(ip, "s-"+ip)
		if gofakeit.Bool() {
			id.Referer = ""
		}
		if _, err := te.fw.Evaluate(id); err != nil {
			t.Fatal(err)
		}

		_, ruleErr := te.fw.Rule(ip)
		_, flErr := te.fw.FilterLog(ip)
		if ruleErr == nil && flErr == nil {
			t.Fatalf("%s has a rule and a filter log", ip)
		}
	}

	if err := te.fw.Ban(ips[0], data.ReasonNone); err != nil {
		t.Fatal(err)
	}
	if _, err := te.fw.FilterLog(ips[0]); !errors.Is(err, store.ErrNotFound) {
		t.Error("a ban must remove the filter log")
	}
}

func TestStoreErrorIsReturned(t *testing.T) {
	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		r.Store = store.New(failingDriver{store.NewMemoryDriver()})
	})
	defer te.cancel()

	_, err := te.fw.Evaluate(browser("10.0.0.10", "s10"))
	if !errors.Is(err, errDisk) {
		t.Errorf("the store error should be returned but Evaluate returned %v", err)
	}
	if n := len(te.actionLog.Records()); n != 0 {
		t.Errorf("a failed evaluation must not be logged but %d records were written", n)
	}
}

func TestEvaluateWithoutStorePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Evaluate without store should panic")
		}
	}()

	fw := &Firewall{}
	fw.Evaluate(browser("10.0.0.11", "s11"))
}

func TestNewValidatesConfig(t *testing.T) {
	c := config.Defaults()
	c.Quota.Second = 0

	_, err := New(context.Background(), c, NewResources(store.New(store.NewMemoryDriver())))
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New should fail with ErrInvalid but returned %v", err)
	}

	if _, err := New(context.Background(), config.Defaults(), &Resources{}); err == nil {
		t.Error("New without store should fail")
	}
}

func TestBanUnban(t *testing.T) {
	te := newTestEnv(t, nil)
	defer te.cancel()

	if err := te.fw.Ban("10.0.0.12", data.ReasonNone); err != nil {
		t.Fatal(err)
	}

	outcome, _ := te.fw.Evaluate(browser("10.0.0.12", "s12"))
	if outcome.Result != data.Deny || outcome.Reason != data.ReasonManualBan {
		t.Errorf("a banned IP should be denied with manual-ban but got %s/%s", outcome.Result, outcome.Reason)
	}

	if err := te.fw.Unban("10.0.0.12"); err != nil {
		t.Fatal(err)
	}
	outcome, _ = te.fw.Evaluate(browser("10.0.0.12", "s12"))
	if outcome.Result != data.Allow {
		t.Errorf("an unbanned IP should be allowed but is %s", outcome.Result)
	}

	recs := te.actionLog.Records()
	codes := make([]int, len(recs))
	for i, r := range recs {
		codes[i] = r.ActionCode
	}
	want := []int{int(data.ActionDeny), int(data.LogBlacklist), int(data.ActionUnban), int(data.LogPageview)}
	if len(codes) != len(want) {
		t.Fatalf("action codes are %v instead of %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("action codes are %v instead of %v", codes, want)
			break
		}
	}

	snap, err := te.fw.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Rules) != 0 || len(snap.FilterLogs) != 1 || snap.Stats.Total != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !snap.EnabledChecks.Frequency || snap.Properties.Quota != te.fw.config.Quota {
		t.Errorf("the snapshot should carry the kernel settings: %+v %+v", snap.EnabledChecks, snap.Properties)
	}

	if err := te.fw.ResetDataCircle(); err != nil {
		t.Fatal(err)
	}
	if logs, _ := te.res.Store.FilterLogs(); len(logs) != 0 {
		t.Errorf("%d filter logs survived the reset", len(logs))
	}
}

func TestComponentsKeepTheirStrictness(t *testing.T) {
	ua := component.NewUserAgent()
	ua.SetStrict(true)
	header := component.NewHeader()

	te := newTestEnv(t, func(c *config.Config, r *Resources) {
		r.Components = append(r.Components, header, ua)
	})
	defer te.cancel()

	if !ua.IsStrict() || header.IsStrict() {
		t.Fatalf("New changed the strict mode: useragent %v, header %v", ua.IsStrict(), header.IsStrict())
	}

	id := browser("10.0.0.30", "s30")
	id.UserAgent = ""
	outcome, err := te.fw.Evaluate(id)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result != data.Deny || outcome.Reason != data.ReasonComponentUserAgent {
		t.Errorf("an empty user agent should be %s/%s but is %s/%s", data.Deny, data.ReasonComponentUserAgent, outcome.Result, outcome.Reason)
	}

	te.at(base.Add(time.Second))
	outcome, err = te.fw.Evaluate(browser("10.0.0.31", "s31"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Result != data.Allow {
		t.Errorf("the lenient header component should let a client without headers pass but got %s/%s", outcome.Result, outcome.Reason)
	}
}

func TestAttemptsCountedWithoutEscalation(t *testing.T) {
	te := newTestEnv(t, nil)
	defer te.cancel()

	te.res.Store.SaveRule(data.NewRule("10.0.0.32", "", data.ActionTemporarilyDeny, data.ReasonEmptyReferer, base))

	for i := 1; i <= 12; i++ {
		te.at(base.Add(time.Duration(i) * time.Second))
		outcome, err := te.fw.Evaluate(browser("10.0.0.32", "s32"))
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Result != data.TemporarilyDeny {
			t.Fatalf("hit #%d should stay %s without escalation but is %s", i, data.TemporarilyDeny, outcome.Result)
		}
	}

	rule, err := te.fw.Rule("10.0.0.32")
	if err != nil {
		t.Fatal(err)
	}
	if rule.Attempts != 12 || rule.Action != data.ActionTemporarilyDeny {
		t.Errorf("the rule should have 12 attempts and stay %s but is %s with %d", data.ActionTemporarilyDeny, rule.Action, rule.Attempts)
	}
	if !rule.JudgedAt.Equal(base.Add(12 * time.Second)) {
		t.Errorf("the rule should be judged at the last hit but was judged at %s", rule.JudgedAt)
	}
}
