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

// Package config parses the best-effort key/value file a Core consumes
// at construction time: which RF technologies and poll/listen sides to
// enable by default, and an optional static Listen-A NFCID1. Unlike the
// teacher's tag-specific settings (none — go-nfctype4 has no config
// file at all), this format is explicitly laid out in the spec this
// core implements, so the package exists purely to turn an INI file
// into the sm.OpMode/sm.Tech bitmasks the façade already understands.
package config

import (
	"encoding/hex"
	"strings"

	"github.com/go-ini/ini"
	"go.uber.org/zap"

	"github.com/ponte-nfc/ncicore/sm"
)

// Config is the parsed, gated set of technologies/modes plus an
// optional static NFCID1.
type Config struct {
	OpMode sm.OpMode
	Tech   sm.Tech
	// NFCID1 is the static Listen-A identifier, nil for "dynamic".
	NFCID1 []byte
}

// Default returns the configuration a Core would use with no file at
// all: poll mode, every technology enabled, dynamic NFCID1.
func Default() Config {
	return Config{
		OpMode: sm.OpModePoll,
		Tech:   sm.TechA | sm.TechB | sm.TechF | sm.TechV,
	}
}

var techByLetter = map[string]sm.Tech{
	"A": sm.TechA,
	"B": sm.TechB,
	"F": sm.TechF,
	"V": sm.TechV,
}

// Load reads path and returns the resulting Config. A missing or
// malformed file is not fatal: it logs a warning and returns Default().
// Unrecognized section names, keys, or technology letters are ignored
// with a warning, per the format's best-effort contract.
func Load(path string, log *zap.Logger) Config {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := Default()
	f, err := ini.Load(path)
	if err != nil {
		log.Warn("reading config file, using defaults", zap.String("path", path), zap.Error(err))
		return cfg
	}

	rf := f.Section("RF")
	if k := rf.Key("Technologies"); k.String() != "" {
		cfg.Tech = parseTechList(k.String(), log)
	}
	for _, mode := range []string{"Poll", "Listen"} {
		for letter, tech := range techByLetter {
			key := mode + "-" + letter
			if !rf.HasKey(key) {
				continue
			}
			enabled, err := rf.Key(key).Bool()
			if err != nil {
				log.Warn("ignoring malformed config key", zap.String("key", key), zap.Error(err))
				continue
			}
			bit := sm.OpModePoll
			if mode == "Listen" {
				bit = sm.OpModeListen
			}
			if enabled {
				cfg.OpMode |= bit
				cfg.Tech |= tech
			} else {
				cfg.Tech &^= tech
			}
		}
	}

	params := f.Section("Params")
	if k := params.Key("NFCID1"); k.String() != "" {
		b, err := hex.DecodeString(k.String())
		if err != nil {
			log.Warn("ignoring malformed NFCID1", zap.String("value", k.String()), zap.Error(err))
		} else {
			cfg.NFCID1 = b
		}
	}

	for _, name := range f.SectionStrings() {
		if name != "DEFAULT" && name != "RF" && name != "Params" {
			log.Warn("ignoring unrecognized config section", zap.String("section", name))
		}
	}
	knownRF := map[string]bool{"Technologies": true}
	for letter := range techByLetter {
		knownRF["Poll-"+letter] = true
		knownRF["Listen-"+letter] = true
	}
	for _, key := range rf.KeyStrings() {
		if !knownRF[key] {
			log.Warn("ignoring unrecognized config key", zap.String("section", "RF"), zap.String("key", key))
		}
	}
	for _, key := range params.KeyStrings() {
		if key != "NFCID1" {
			log.Warn("ignoring unrecognized config key", zap.String("section", "Params"), zap.String("key", key))
		}
	}

	return cfg
}

func parseTechList(raw string, log *zap.Logger) sm.Tech {
	var tech sm.Tech
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		t, ok := techByLetter[tok]
		if !ok {
			log.Warn("ignoring unrecognized technology", zap.String("token", tok))
			continue
		}
		tech |= t
	}
	return tech
}
