/***
    Copyright (c) 2016, Hector Sanjuan

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU Lesser General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU Lesser General Public License for more details.

    You should have received a copy of the GNU Lesser General Public License
    along with this program.  If not, see <http://www.gnu.org/licenses/>.
***/

// ncictl is a subcommand CLI exercising ncicore against either a
// simulated or a real UART-attached NFC Controller. It plays the role
// the teacher's nfctype4-tool played for a single Type 4 Tag driver,
// scaled to the bigger command surface an NCI stack exposes: mode/tech
// selection, discovery, listening, and configuration inspection.
package main

import (
	"fmt"
	"os"

	"github.com/ponte-nfc/ncicore/cmd/ncictl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
