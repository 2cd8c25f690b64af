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
	"time"

	"github.com/spf13/cobra"

	"github.com/ponte-nfc/ncicore/sm"
)

var listenTimeout time.Duration

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Switch to listen mode and report incoming data until interrupted",
	Long: `listen sets the Core's op-mode to listen, starts discovery, and
prints every reassembled data packet received on any logical connection
until Ctrl+C or --timeout elapses.`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().DurationVar(&listenTimeout, "timeout", 0,
		"stop listening after this long (0 = run until interrupted)")
}

func runListen(cmd *cobra.Command, args []string) error {
	core, log, err := newCore(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	core.SetOpMode(sm.OpModeListen)
	core.OnCurrentStateChanged(func(s sm.StateID) {
		fmt.Fprintf(cmd.OutOrStdout(), "state -> %s\n", s)
	})
	core.OnIncomingData(func(connID byte, payload []byte) {
		fmt.Fprintf(cmd.OutOrStdout(), "data on conn %d: %s\n", connID, hex.EncodeToString(payload))
	})

	core.Discover()
	waitForInterrupt(listenTimeout)
	return nil
}
