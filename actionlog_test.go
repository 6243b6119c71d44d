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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/scraperwall/botgate/data"
)

func TestFileActionLog(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "action.log")
	fal := NewFileActionLog(filename)

	records := []data.ActionRecord{
		{IP: "10.9.0.1", SessionID: "s1", ActionCode: int(data.LogPageview), Timestamp: base},
		{IP: "10.9.0.2", SessionID: "s2", ActionCode: int(data.LogCaptcha), Reason: data.ReasonReachedLimitSecond, Timestamp: base},
	}
	for _, rec := range records {
		if err := fal.Add(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := fal.Close(); err != nil {
		t.Fatal(err)
	}

	fh, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("%s is not JSON: %s", scanner.Text(), err)
		}
		lines = append(lines, line)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines but got %d", len(lines))
	}
	if lines[1]["ip"] != "10.9.0.2" || lines[1]["action_code"] != float64(data.LogCaptcha) || lines[1]["reason"] != float64(data.ReasonReachedLimitSecond) {
		t.Errorf("unexpected line %v", lines[1])
	}
	if lines[0]["timestamp"] != "2021-03-01T12:00:00Z" {
		t.Errorf("the record time should be logged but got %v", lines[0]["timestamp"])
	}
}
