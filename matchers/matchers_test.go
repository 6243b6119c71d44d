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

package matchers

import "testing"

func TestIsStatic(t *testing.T) {
	tests := []struct {
		path   string
		static bool
	}{
		{"/img/logo.png", true},
		{"/img/Photo.JPG", true},
		{"/app.js", true},
		{"/app.js.map", true},
		{"/fonts/x.woff2", true},
		{"/robots.txt", true},
		{"/favicon.ico", true},
		{"/sitemap-products.xml", true},
		{"/.well-known/security.txt", true},
		{"/", false},
		{"/products/42", false},
		{"/json.jsp", false},
		{"/docs/robots.txt.html", false},
	}

	for _, tt := range tests {
		if got := IsStatic(tt.path); got != tt.static {
			t.Errorf("IsStatic(%q) = %v, want %v", tt.path, got, tt.static)
		}
	}
}
