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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ponte-nfc/ncicore/sm"
)

func TestDumpConfigPrintsDefaults(t *testing.T) {
	cfgFile = ""
	var out bytes.Buffer
	dumpConfigCmd.SetOut(&out)
	require.NoError(t, dumpConfigCmd.RunE(dumpConfigCmd, nil))
	require.Contains(t, out.String(), "op_mode: poll")
	require.Contains(t, out.String(), "nfcid1: (generated by controller)")
}

func TestDiscoverAgainstSimulatorReachesIdleThenActivates(t *testing.T) {
	halFlag = "simulator"
	discoverTimeout = 200 * time.Millisecond
	var out bytes.Buffer
	discoverCmd.SetOut(&out)
	require.NoError(t, discoverCmd.RunE(discoverCmd, nil))
	require.Contains(t, out.String(), "activated:")
}

func TestOpModeStringAndTechString(t *testing.T) {
	require.Equal(t, "poll", opModeString(sm.OpModePoll))
	require.Equal(t, "poll,listen", opModeString(sm.OpModePoll|sm.OpModeListen))
	require.Equal(t, "(none)", opModeString(0))
	require.Equal(t, "A,F", techString(sm.TechA|sm.TechF))
}
