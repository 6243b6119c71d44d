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

// Package matchers holds the path patterns of requests that never reach a page
package matchers

import "regexp"

var (
	// Assets matches paths of images, fonts, scripts and stylesheets
	Assets = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|avif|ico|tiff?|pdf|css|js|map|woff2?|ttf|eot|otf|svg|ttc)$`)

	// WellKnown matches the files browsers and crawlers fetch on their own
	WellKnown = regexp.MustCompile(`^/(favicon\.ico|robots\.txt|sitemap[^/]*\.xml|\.well-known/.*)$`)
)

// IsStatic reports whether path is a static asset or a well-known file
func IsStatic(path string) bool {
	return Assets.MatchString(path) || WellKnown.MatchString(path)
}
