/*
Copyright © 2020 the UMPost authors.
This file is part of UMPost.

UMPost is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

UMPost is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with UMPost.  If not, see <http://www.gnu.org/licenses/>.
*/

package umpost

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Defaults for FilenameList.
const (
	DefaultFileGlob  = "umglaa*"
	DefaultFileRegex = `umglaa.p[b,c,d,e]{1}[0]{6}(?P<timestamp>[0-9]{2,4})_00`
	DefaultRegexKey  = "timestamp"
)

// FilenameList returns the sorted paths of the files in dir that match
// the glob pattern and whose base names start with a match of regex.
// The regex group named key must hold an integer timestamp, and only
// files with timestamps >= tsStart are returned.
func FilenameList(dir, glob string, tsStart int, regex, key string) ([]string, error) {
	re, err := regexp.Compile(regex)
	if err != nil {
		return nil, fmt.Errorf("umpost: file regex: %v", err)
	}
	group := -1
	for i, n := range re.SubexpNames() {
		if n == key {
			group = i
		}
	}
	if group < 0 {
		return nil, fmt.Errorf("umpost: file regex %q has no group named %q", regex, key)
	}
	paths, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("umpost: file glob: %v", err)
	}
	sort.Strings(paths)
	var o []string
	for _, p := range paths {
		m := re.FindStringSubmatchIndex(filepath.Base(p))
		if m == nil || m[0] != 0 || m[2*group] < 0 {
			continue
		}
		ts, err := strconv.Atoi(filepath.Base(p)[m[2*group]:m[2*group+1]])
		if err != nil {
			return nil, fmt.Errorf("umpost: timestamp of file %s: %v", p, err)
		}
		if ts >= tsStart {
			o = append(o, p)
		}
	}
	return o, nil
}
