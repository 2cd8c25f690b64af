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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ponte-nfc/ncicore/sm"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ncictl.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestMissingFileReturnsDefault(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.ini"), nil)
	require.Equal(t, Default(), cfg)
}

func TestTechnologiesListRestrictsMask(t *testing.T) {
	path := writeTempConfig(t, "[RF]\nTechnologies = A,F\n")
	cfg := Load(path, nil)
	require.Equal(t, sm.TechA|sm.TechF, cfg.Tech)
}

func TestPollListenKeysGateOpModeAndTech(t *testing.T) {
	path := writeTempConfig(t, "[RF]\nTechnologies = A,B\nListen-B = true\nPoll-A = false\n")
	cfg := Load(path, nil)
	require.True(t, cfg.OpMode&sm.OpModeListen != 0)
	require.True(t, cfg.Tech&sm.TechB != 0)
	require.False(t, cfg.Tech&sm.TechA != 0)
}

func TestStaticNFCID1IsHexDecoded(t *testing.T) {
	path := writeTempConfig(t, "[Params]\nNFCID1 = DEADBEEF\n")
	cfg := Load(path, nil)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, cfg.NFCID1)
}

func TestMalformedNFCID1IsIgnored(t *testing.T) {
	path := writeTempConfig(t, "[Params]\nNFCID1 = not-hex\n")
	cfg := Load(path, nil)
	require.Nil(t, cfg.NFCID1)
}

func TestUnrecognizedTechnologyTokenIsIgnored(t *testing.T) {
	path := writeTempConfig(t, "[RF]\nTechnologies = A,Z\n")
	cfg := Load(path, nil)
	require.Equal(t, sm.TechA, cfg.Tech)
}
