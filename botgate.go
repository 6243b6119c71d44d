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
	"strings"
	"time"

	"github.com/scraperwall/botgate/component"
	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/matchers"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

// Firewall decides for every request whether it is allowed, has to solve a
// captcha, is denied or has to wait for a free session slot
type Firewall struct {
	config        *config.Config
	resources     *Resources
	filter        *Filter
	sessions      *SessionAdmission
	locks         *keyLock
	botVerifier   component.BotVerifier
	ipChecker     component.IPChecker
	components    []component.Component
	notifications *dispatcher
	stats         *StatsWindows
	recent        *RecentDecisions
	startedAt     time.Time
	ctx           context.Context
}

// Snapshot is the state of a firewall at one point in time
type Snapshot struct {
	EnabledChecks EnabledChecks     `json:"enabled_checks"`
	Properties    Properties        `json:"properties"`
	Rules         []*data.Rule      `json:"rules"`
	FilterLogs    []*data.FilterLog `json:"filter_logs"`
	Sessions      []*data.Session   `json:"sessions"`
	Stats         Stats             `json:"stats"`
}

// ComponentState is a registered component and its policy
type ComponentState struct {
	Name   string `json:"name"`
	Strict bool   `json:"strict"`
}

// EnabledChecks lists the behavioral filters that are switched on and the
// components in pipeline order
type EnabledChecks struct {
	Frequency           bool             `json:"frequency"`
	Referer             bool             `json:"referer"`
	Session             bool             `json:"session"`
	Cookie              bool             `json:"cookie"`
	ExcludeStaticAssets bool             `json:"exclude_static_assets"`
	Components          []ComponentState `json:"components"`
}

// Properties are the kernel settings a firewall runs with
type Properties struct {
	Quota                config.Quota        `json:"quota"`
	UnusualQuota         config.UnusualQuota `json:"unusual_quota"`
	RefererCheckInterval time.Duration       `json:"referer_check_interval"`
	SessionCheckInterval time.Duration       `json:"session_check_interval"`
	FlagResetWindow      time.Duration       `json:"flag_reset_window"`
	DetectionPeriod      time.Duration       `json:"detection_period"`
	AttemptResetWindow   time.Duration       `json:"attempt_reset_window"`
	DenyAttempt          config.Escalation   `json:"deny_attempt"`
	Buffer               config.Buffer       `json:"buffer"`
	Notify               config.Escalation   `json:"notify"`
	SessionLimit         config.SessionLimit `json:"session_limit"`
	ExcludedURLs         []string            `json:"excluded_urls"`
}

// New creates a firewall. The first BotVerifier and the first IPChecker among
// the components get their dedicated pipeline stages, all other components
// are checked in registration order.
func New(ctx context.Context, config *config.Config, resources *Resources) (*Firewall, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if resources == nil || resources.Store == nil {
		return nil, errors.New("the firewall needs a store")
	}
	if resources.Clock == nil {
		resources.Clock = time.Now
	}

	if err := resources.Store.Init(true); err != nil {
		return nil, fmt.Errorf("failed to initialize the store: %w", err)
	}

	f := &Firewall{
		config:     config,
		resources:  resources,
		filter:     NewFilter(config, resources.Store),
		sessions:   NewSessionAdmission(config, resources.Store),
		locks:      newKeyLock(keyLockStripes),
		components: make([]component.Component, 0, len(resources.Components)),
		stats:      NewStatsWindows(config.StatsWindow, config.StatsWindows),
		recent:     NewRecentDecisions(config.KeepRecent, config.StatsWindow*time.Duration(config.StatsWindows)),
		startedAt:  resources.Clock(),
		ctx:        ctx,
	}

	for _, c := range resources.Components {
		if bv, ok := c.(component.BotVerifier); ok && f.botVerifier == nil {
			f.botVerifier = bv
			continue
		}
		if ipc, ok := c.(component.IPChecker); ok && f.ipChecker == nil {
			f.ipChecker = ipc
			continue
		}
		f.components = append(f.components, c)
	}

	if resources.Notifier != nil {
		f.notifications = newDispatcher(ctx, resources.Notifier, config.NotifyQueue, config.NotifyRate)
	}

	go f.expireWorker()
	if config.LogMemoryStats {
		go f.logMemoryStats(config.StatsWindow)
	}

	log.Infof("firewall ready with %d components", len(resources.Components))
	return f, nil
}

// Evaluate decides on the request of id at the current time
func (f *Firewall) Evaluate(id *data.Identity) (data.Outcome, error) {
	f.mustHaveStore()
	return f.EvaluateAt(id, f.resources.Clock())
}

// EvaluateAt decides on the request of id as if it arrived at now.
// Store errors are returned, an outcome is only valid without error.
func (f *Firewall) EvaluateAt(id *data.Identity, now time.Time) (data.Outcome, error) {
	f.mustHaveStore()

	if f.isExcluded(id.Path) {
		return data.Outcome{Result: data.Allow}, nil
	}

	unlock := f.locks.lock(id.IP)
	outcome, err := f.decide(id, now)
	unlock()

	if err != nil {
		return data.Outcome{}, err
	}

	f.record(id, outcome, now)
	return outcome, nil
}

func (f *Firewall) mustHaveStore() {
	if f.resources == nil || f.resources.Store == nil {
		panic("botgate: Evaluate on a firewall without store")
	}
}

func (f *Firewall) decide(id *data.Identity, now time.Time) (data.Outcome, error) {
	rule, err := f.resources.Store.Rule(id.IP)
	if err == nil {
		if rule.Action == data.ActionAllow {
			return f.admit(id, data.Outcome{Result: data.Allow, Reason: rule.Reason}, now)
		}

		action, err := f.escalate(rule, now)
		if err != nil {
			return data.Outcome{}, err
		}
		return data.Outcome{Result: data.ResultFor(action), Reason: rule.Reason}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return data.Outcome{}, fmt.Errorf("failed to load the rule for %s: %w", id.IP, err)
	}

	f.resolveRDNS(id)

	if f.botVerifier != nil {
		if ok, reason := f.botVerifier.IsAllowed(id); ok {
			return f.judge(id, data.ActionAllow, reason, now)
		}
		if f.botVerifier.IsFakeRobot(id) {
			return f.judge(id, data.ActionDeny, f.botVerifier.DenyReason(), now)
		}
	}

	if f.ipChecker != nil {
		if action, reason, ok := f.ipChecker.Check(id); ok {
			outcome, err := f.judge(id, action, reason, now)
			if err != nil || outcome.Result != data.Allow {
				return outcome, err
			}
			return f.admit(id, outcome, now)
		}
	}

	for _, c := range f.components {
		if c.IsDenied(id) {
			log.Tracef("%s denied %s", c.Name(), id.IP)
			return f.judge(id, data.ActionDeny, c.DenyReason(), now)
		}
	}

	outcome, err := f.filter.Check(id, now)
	if err != nil {
		return data.Outcome{}, err
	}

	if outcome.Result == data.TemporarilyDeny {
		if err := f.action(id, data.ActionTemporarilyDeny, outcome.Reason, now); err != nil {
			return data.Outcome{}, err
		}
		return outcome, nil
	}

	return f.admit(id, outcome, now)
}

// judge writes a rule and returns the matching outcome
func (f *Firewall) judge(id *data.Identity, action data.Action, reason data.Reason, now time.Time) (data.Outcome, error) {
	if err := f.action(id, action, reason, now); err != nil {
		return data.Outcome{}, err
	}
	return data.Outcome{Result: data.ResultFor(action), Reason: reason}, nil
}

// admit runs session admission for an allowed request
func (f *Firewall) admit(id *data.Identity, outcome data.Outcome, now time.Time) (data.Outcome, error) {
	admission, err := f.sessions.Admit(id.SessionID, id.IP, now)
	if err != nil {
		return data.Outcome{}, err
	}

	if admission.Result == data.SessionQueueLimit {
		admission.ClearJSCookie = outcome.ClearJSCookie
		return admission, nil
	}

	outcome.SessionOrder = admission.SessionOrder
	return outcome, nil
}

// resolveRDNS looks up the reverse hostname when the components need it.
// A failed lookup leaves it empty.
func (f *Firewall) resolveRDNS(id *data.Identity) {
	if id.RDNS != "" || f.resources.Resolver == nil {
		return
	}

	host, err := f.resources.Resolver.Reverse(id.IP)
	if err != nil {
		log.Tracef("reverse lookup of %s failed: %s", id.IP, err)
		return
	}
	id.RDNS = host
}

func (f *Firewall) isExcluded(path string) bool {
	for _, prefix := range f.config.ExcludedURLs {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return f.config.ExcludeStaticAssets && matchers.IsStatic(path)
}

// record appends the outcome to the action log and the statistics
func (f *Firewall) record(id *data.Identity, outcome data.Outcome, now time.Time) {
	f.logAction(id.IP, id.SessionID, int(data.LogCodeFor(outcome.Result)), outcome.Reason, now)

	f.stats.Add(outcome.Result, now)
	f.recent.Add(Decision{
		IP:        id.IP,
		SessionID: id.SessionID,
		Path:      id.Path,
		UserAgent: id.UserAgent,
		Result:    outcome.Result,
		Reason:    outcome.Reason,
		Time:      now,
	})
}

func (f *Firewall) logAction(ip, sessionID string, code int, reason data.Reason, now time.Time) {
	if f.resources.ActionLog == nil {
		return
	}

	err := f.resources.ActionLog.Add(data.ActionRecord{
		IP:         ip,
		SessionID:  sessionID,
		ActionCode: code,
		Reason:     reason,
		Timestamp:  now,
	})
	if err != nil {
		log.Warnf("failed to write the action log for %s: %s", ip, err)
	}
}

// Ban permanently denies ip
func (f *Firewall) Ban(ip string, reason data.Reason) error {
	if reason == data.ReasonNone {
		reason = data.ReasonManualBan
	}
	now := f.resources.Clock()

	unlock := f.locks.lock(ip)
	err := f.action(&data.Identity{IP: ip}, data.ActionDeny, reason, now)
	unlock()
	if err != nil {
		return err
	}

	f.logAction(ip, "", int(data.ActionDeny), reason, now)
	log.Infof("%s banned (%s)", ip, reason)
	return nil
}

// Unban removes the rule and the filter log of ip
func (f *Firewall) Unban(ip string) error {
	unlock := f.locks.lock(ip)
	defer unlock()

	s := f.resources.Store
	if err := s.DeleteRule(ip); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete the rule for %s: %w", ip, err)
	}
	if err := s.DeleteFilterLog(ip); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete the filter log of %s: %w", ip, err)
	}

	f.logAction(ip, "", int(data.ActionUnban), data.ReasonNone, f.resources.Clock())
	log.Infof("%s unbanned", ip)
	return nil
}

// Rule returns the rule of ip. store.ErrNotFound is returned if there is none.
func (f *Firewall) Rule(ip string) (*data.Rule, error) {
	return f.resources.Store.Rule(ip)
}

// Rules returns all rules
func (f *Firewall) Rules() ([]*data.Rule, error) {
	return f.resources.Store.Rules()
}

// FilterLog returns the behavioral counters of ip
func (f *Firewall) FilterLog(ip string) (*data.FilterLog, error) {
	return f.resources.Store.FilterLog(ip)
}

// Sessions returns all recorded sessions, expired ones included
func (f *Firewall) Sessions() ([]*data.Session, error) {
	return f.resources.Store.Sessions()
}

// ResetDataCircle drops all rules, filter logs and sessions
func (f *Firewall) ResetDataCircle() error {
	if err := f.resources.Store.Rebuild(); err != nil {
		return fmt.Errorf("failed to reset the data circle: %w", err)
	}
	log.Infof("data circle reset")
	return nil
}

// Snapshot returns the settings and the complete persisted state
func (f *Firewall) Snapshot() (*Snapshot, error) {
	rules, err := f.Rules()
	if err != nil {
		return nil, err
	}
	filterLogs, err := f.resources.Store.FilterLogs()
	if err != nil {
		return nil, err
	}
	sessions, err := f.Sessions()
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		EnabledChecks: f.EnabledChecks(),
		Properties:    f.Properties(),
		Rules:         rules,
		FilterLogs:    filterLogs,
		Sessions:      sessions,
		Stats:         f.stats.Totals(),
	}, nil
}

// componentStates lists the registered components in pipeline order
func (f *Firewall) componentStates() []ComponentState {
	all := make([]component.Component, 0, len(f.components)+2)
	if f.botVerifier != nil {
		all = append(all, f.botVerifier)
	}
	if f.ipChecker != nil {
		all = append(all, f.ipChecker)
	}
	all = append(all, f.components...)

	states := make([]ComponentState, len(all))
	for i, c := range all {
		states[i] = ComponentState{Name: c.Name(), Strict: c.IsStrict()}
	}
	return states
}

// EnabledChecks returns the switched on filters and the registered components
func (f *Firewall) EnabledChecks() EnabledChecks {
	return EnabledChecks{
		Frequency:           f.config.Filters.Frequency,
		Referer:             f.config.Filters.Referer,
		Session:             f.config.Filters.Session,
		Cookie:              f.config.Filters.Cookie,
		ExcludeStaticAssets: f.config.ExcludeStaticAssets,
		Components:          f.componentStates(),
	}
}

// Properties returns a copy of the kernel settings
func (f *Firewall) Properties() Properties {
	c := f.config
	return Properties{
		Quota:                c.Quota,
		UnusualQuota:         c.UnusualQuota,
		RefererCheckInterval: c.RefererCheckInterval,
		SessionCheckInterval: c.SessionCheckInterval,
		FlagResetWindow:      c.FlagResetWindow,
		DetectionPeriod:      c.DetectionPeriod,
		AttemptResetWindow:   c.AttemptResetWindow,
		DenyAttempt:          c.DenyAttempt,
		Buffer:               c.Buffer,
		Notify:               c.Notify,
		SessionLimit:         c.SessionLimit,
		ExcludedURLs:         append([]string(nil), c.ExcludedURLs...),
	}
}

// Stats returns the outcome statistics
func (f *Firewall) Stats() *StatsWindows {
	return f.stats
}

// Recent returns the latest decisions
func (f *Firewall) Recent() *RecentDecisions {
	return f.recent
}

func (f *Firewall) expireWorker() {
	ticker := time.NewTicker(f.stats.windowSize)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			log.Tracef("firewall expire worker exiting")
			return
		case <-ticker.C:
			now := f.resources.Clock()
			f.stats.Expire(now)
			f.recent.Expire(now)
		}
	}
}
