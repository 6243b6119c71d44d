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
	"errors"
	"fmt"
	"time"

	"github.com/scraperwall/botgate/data"
	"github.com/scraperwall/botgate/store"
	log "github.com/sirupsen/logrus"
)

// action writes a rule for the identity and removes its filter log
func (f *Firewall) action(id *data.Identity, action data.Action, reason data.Reason, now time.Time) error {
	rule := data.NewRule(id.IP, id.RDNS, action, reason, now)

	if err := f.resources.Store.SaveRule(rule); err != nil {
		return fmt.Errorf("failed to save the rule for %s: %w", id.IP, err)
	}

	if err := f.resources.Store.DeleteFilterLog(id.IP); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete the filter log of %s: %w", id.IP, err)
	}

	log.Tracef("rule for %s: %s (%s)", id.IP, action, reason)
	return nil
}

// escalate counts repeated hits of a denied IP. When the escalation switches
// are on it turns temporary denies into permanent ones and hands permanent
// denies to the system firewall. It returns
// the action the rule has afterwards.
func (f *Firewall) escalate(rule *data.Rule, now time.Time) (data.Action, error) {
	c := f.config

	since := now.Sub(rule.JudgedAt)
	if since <= c.DetectionPeriod {
		rule.Attempts++
	} else if since > c.AttemptResetWindow {
		rule.Attempts = 0
	}

	var notification *data.Notification
	attempts := rule.Attempts

	switch {
	case rule.Action == data.ActionTemporarilyDeny && c.DenyAttempt.DataCircle && rule.Attempts >= c.Buffer.DataCircle:
		rule.Action = data.ActionDeny
		rule.Attempts = 0

		log.Infof("%s escalated to permanent deny after %d attempts", rule.IP, attempts)
		if c.Notify.DataCircle {
			notification = f.notification(rule, data.HandleEscalatedToDeny, attempts, now)
		}

	case rule.Action == data.ActionDeny && c.DenyAttempt.SystemFirewall && rule.Attempts >= c.Buffer.SystemFirewall:
		if err := f.submit(rule.IP); err != nil {
			log.Warnf("failed to submit %s to the system firewall: %s", rule.IP, err)
			break
		}
		rule.Attempts = 0

		log.Infof("%s submitted to the system firewall after %d attempts", rule.IP, attempts)
		if c.Notify.SystemFirewall {
			notification = f.notification(rule, data.HandleSystemFirewall, attempts, now)
		}
	}

	rule.JudgedAt = now
	if err := f.resources.Store.SaveRule(rule); err != nil {
		return rule.Action, fmt.Errorf("failed to save the rule for %s: %w", rule.IP, err)
	}

	if notification != nil && f.notifications != nil {
		f.notifications.dispatch(*notification)
	}

	return rule.Action, nil
}

func (f *Firewall) submit(ip string) error {
	if f.resources.SystemFirewall == nil {
		return ErrNoSystemFirewall
	}
	return f.resources.SystemFirewall.Submit(ip)
}

func (f *Firewall) notification(rule *data.Rule, handle data.HandleType, attempts int, now time.Time) *data.Notification {
	return &data.Notification{
		IP:         rule.IP,
		Hostname:   rule.Hostname,
		HandleType: handle,
		Handle:     handle.String(),
		Action:     rule.Action,
		Reason:     rule.Reason,
		Attempts:   attempts,
		Time:       now,
	}
}
