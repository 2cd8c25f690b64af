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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponte-nfc/ncicore/sm"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Start RF discovery and report activations until interrupted",
	Long: `discover drives the Core from Idle into Discovery and prints each
RF_INTF_ACTIVATED_NTF it receives (discovery id, interface, protocol,
mode, activation parameters) until Ctrl+C or --timeout elapses.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0,
		"stop discovering after this long (0 = run until interrupted)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	core, log, err := newCore(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	core.OnCurrentStateChanged(func(s sm.StateID) {
		fmt.Fprintf(cmd.OutOrStdout(), "state -> %s\n", s)
	})
	core.OnInterfaceActivated(func(a sm.IntfActivation) {
		fmt.Fprintf(cmd.OutOrStdout(),
			"activated: discovery_id=%d interface=0x%02x protocol=0x%02x mode=0x%02x params=%s\n",
			a.DiscoveryID, a.Interface, a.Protocol, a.Mode,
			activationParamString(a.Param))
	})

	core.Discover()
	waitForInterrupt(discoverTimeout)
	return nil
}
