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
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/satyrius/gonx"
	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
)

// CombinedLogFormat is the nginx/apache combined log format
const CombinedLogFormat = `$remote_addr - $remote_user [$time_local] "$request" $status $body_bytes_sent "$http_referer" "$http_user_agent"`

const timeLocalLayout = "02/Jan/2006:15:04:05 -0700"

var reqRegexp = regexp.MustCompile(`^([A-Z]+)\s+(.+?)\s+(HTTP/\d+\.\d+)$`)

// ReplayReport sums up a log replay
type ReplayReport struct {
	Lines   int                 `json:"lines"`
	Skipped int                 `json:"skipped"`
	Results map[data.Result]int `json:"results"`
}

// ReplayFile replays the access log in filename, see Replay
func (f *Firewall) ReplayFile(filename, format string) (*ReplayReport, error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	return f.Replay(fh, format)
}

// Replay runs every line of an access log through the firewall at the time the
// line was logged. The client IP serves as session id. format is a gonx log
// format, an empty format or "combined" means CombinedLogFormat.
// Lines that cannot be parsed are skipped, a store error stops the replay.
func (f *Firewall) Replay(r io.Reader, format string) (*ReplayReport, error) {
	if format == "" || format == "combined" {
		format = CombinedLogFormat
	}
	p := gonx.NewParser(format)

	report := &ReplayReport{
		Results: make(map[data.Result]int),
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		report.Lines++

		id, ts, err := replayIdentity(p, scanner.Text())
		if err != nil {
			log.Debugf("line %d: %s", report.Lines, err)
			report.Skipped++
			continue
		}

		outcome, err := f.EvaluateAt(id, ts)
		if err != nil {
			return report, fmt.Errorf("line %d: %w", report.Lines, err)
		}
		report.Results[outcome.Result]++
	}
	if err := scanner.Err(); err != nil {
		return report, err
	}

	log.Infof("replayed %d lines, %d skipped", report.Lines, report.Skipped)
	return report, nil
}

func replayIdentity(p *gonx.Parser, line string) (*data.Identity, time.Time, error) {
	logEntry, err := p.ParseString(line)
	if err != nil {
		return nil, time.Time{}, err
	}

	remote, err := logEntry.Field("remote_addr")
	if err != nil {
		return nil, time.Time{}, err
	}
	if xff, err := logEntry.Field("http_x_forwarded_for"); err == nil && xff != "" && xff != "-" {
		remote = xff
	}

	// only use the first host in case there are multiple hosts in the log
	if cidx := strings.Index(remote, ","); cidx >= 0 {
		remote = remote[0:cidx]
	}
	ip := net.ParseIP(strings.TrimSpace(remote))
	if ip == nil {
		return nil, time.Time{}, fmt.Errorf("invalid remote address %q", remote)
	}

	timeLocal, err := logEntry.Field("time_local")
	if err != nil {
		return nil, time.Time{}, err
	}
	ts, err := time.Parse(timeLocalLayout, timeLocal)
	if err != nil {
		return nil, time.Time{}, err
	}

	httpRequest, err := logEntry.Field("request")
	if err != nil {
		return nil, time.Time{}, err
	}
	reqData := reqRegexp.FindStringSubmatch(httpRequest)
	if len(reqData) < 4 {
		return nil, time.Time{}, fmt.Errorf("invalid request %q", httpRequest)
	}

	path := reqData[2]
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}

	id := &data.Identity{
		IP:        ip.String(),
		SessionID: ip.String(),
		Path:      path,
		Method:    reqData[1],
	}

	id.Host, _ = logEntry.Field("host")
	id.UserAgent, _ = logEntry.Field("http_user_agent")
	if referer, err := logEntry.Field("http_referer"); err == nil && referer != "-" {
		id.Referer = referer
	}

	return id, ts, nil
}
