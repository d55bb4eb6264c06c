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

// Command umpost is a command-line interface for post-processing
// global Unified Model output.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/umpost/umpostutil"
)

func main() {
	cfg := umpostutil.InitializeConfig()
	if err := cfg.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
