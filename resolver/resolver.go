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

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ReneKroon/ttlcache/v2"
	"github.com/miekg/dns"
	"github.com/scraperwall/botgate/config"
	log "github.com/sirupsen/logrus"
)

// ErrNoIP is returned for lookups of strings that aren't IP addresses
var ErrNoIP = errors.New("not an ip address")

// DNSResolver does reverse and forward lookups against a single DNS server.
// Successful answers are cached for ResolverTTL.
type DNSResolver struct {
	server string
	tries  int
	client *dns.Client
	cache  *ttlcache.Cache
	ctx    context.Context
}

// New creates a DNSResolver that queries config.DNSServer. The cache is closed
// when ctx is done.
func New(ctx context.Context, config *config.Config) *DNSResolver {
	tries := config.ResolverTries
	if tries < 1 {
		tries = 1
	}

	r := &DNSResolver{
		server: config.DNSServer,
		tries:  tries,
		client: &dns.Client{Timeout: config.ResolverTimeout},
		cache:  ttlcache.NewCache(),
		ctx:    ctx,
	}

	r.cache.SkipTTLExtensionOnHit(true)
	if config.ResolverTTL > 0 {
		r.cache.SetTTL(config.ResolverTTL)
	}

	go r.autoClose()

	return r
}

func (r *DNSResolver) autoClose() {
	<-r.ctx.Done()
	log.Infof("resolver closing its cache")
	r.cache.Close()
}

// Reverse returns the PTR hostname of ip without the trailing dot.
// When there is no PTR record the IP itself is returned.
func (r *DNSResolver) Reverse(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("%w: %q", ErrNoIP, ip)
	}

	key := "ptr:" + ip
	if v, err := r.cache.Get(key); err == nil {
		return v.(string), nil
	}

	reverse, err := dns.ReverseAddr(parsed.String())
	if err != nil {
		return "", err
	}

	resp, err := r.exchange(reverse, dns.TypePTR)
	if err != nil {
		return "", err
	}

	hostname := ip
	for _, rr := range resp.Answer {
		if t, ok := rr.(*dns.PTR); ok {
			hostname = strings.TrimSuffix(t.Ptr, ".")
			break
		}
	}
	if hostname == ip {
		log.Tracef("no PTR record for %s", ip)
	}

	r.cache.Set(key, hostname)
	return hostname, nil
}

// Forward returns all A and AAAA addresses of host
func (r *DNSResolver) Forward(host string) ([]string, error) {
	host = strings.TrimSuffix(host, ".")

	key := "fwd:" + host
	if v, err := r.cache.Get(key); err == nil {
		return v.([]string), nil
	}

	addrs := make([]string, 0)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		resp, err := r.exchange(dns.Fqdn(host), qtype)
		if err != nil {
			return nil, err
		}

		for _, rr := range resp.Answer {
			switch t := rr.(type) {
			case *dns.A:
				addrs = append(addrs, t.A.String())
			case *dns.AAAA:
				addrs = append(addrs, t.AAAA.String())
			}
		}
	}

	r.cache.Set(key, addrs)
	return addrs, nil
}

// Confirm reports whether host resolves back to ip
func (r *DNSResolver) Confirm(ip, host string) (bool, error) {
	addrs, err := r.Forward(host)
	if err != nil {
		return false, err
	}

	want := net.ParseIP(ip)
	for _, a := range addrs {
		if net.ParseIP(a).Equal(want) {
			return true, nil
		}
	}
	return false, nil
}

func (r *DNSResolver) exchange(name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.SetQuestion(name, qtype)

	var lastErr error
	for try := 1; try <= r.tries; try++ {
		resp, _, err := r.client.Exchange(m, r.server)
		if err != nil {
			log.Tracef("dns exchange #%d for %s failed: %s", try, name, err)
			lastErr = err
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return resp, nil
		}
		lastErr = fmt.Errorf("dns lookup of %s returned %s", name, dns.RcodeToString[resp.Rcode])
	}

	log.Warnf("dns lookup of %s failed after %d tries: %s", name, r.tries, lastErr)
	return nil, lastErr
}
