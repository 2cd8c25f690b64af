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

package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var dumpConfigCmd = &cobra.Command{
	Use:   "dump-config",
	Short: "Print the op-mode, technology mask, and static NFCID1 ncictl would start with",
	RunE:  runDumpConfig,
}

func runDumpConfig(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()
	cfg := loadConfig(log)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "op_mode: %s\n", opModeString(cfg.OpMode))
	fmt.Fprintf(out, "tech: %s\n", techString(cfg.Tech))
	if len(cfg.NFCID1) > 0 {
		fmt.Fprintf(out, "nfcid1: %s\n", hex.EncodeToString(cfg.NFCID1))
	} else {
		fmt.Fprintln(out, "nfcid1: (generated by controller)")
	}
	return nil
}
