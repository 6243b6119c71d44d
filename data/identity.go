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

package data

import "net/http"

// Identity is everything the firewall knows about the client behind one request.
// It is built once per request by the identity resolver.
type Identity struct {
	IP         string      `json:"ip"`
	SessionID  string      `json:"session_id"`
	NewSession bool        `json:"new_session"`
	Path       string      `json:"path"`
	Host       string      `json:"host"`
	Method     string      `json:"method"`
	Referer    string      `json:"referer"`
	UserAgent  string      `json:"useragent"`
	JSCookie   string      `json:"js_cookie"`
	RDNS       string      `json:"rdns"`
	Header     http.Header `json:"-"`
}
