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

// Package commands implements the ncictl CLI subcommands.
package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ponte-nfc/ncicore"
	"github.com/ponte-nfc/ncicore/config"
	"github.com/ponte-nfc/ncicore/hal"
	"github.com/ponte-nfc/ncicore/hal/serial"
	"github.com/ponte-nfc/ncicore/hal/simulator"
	"github.com/ponte-nfc/ncicore/metrics"
)

var (
	cfgFile    string
	halFlag    string
	serialPort string
	serialBaud int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ncictl",
	Short: "ncictl drives an NFC Controller over NCI",
	Long: `ncictl is a command-line front-end for ncicore: it wires a HAL
(simulated or a real UART-attached controller) to a Core, drives
discovery or listen cycles, and reports the events a Core publishes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. It
// is called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to an ncictl.ini configuration file")
	rootCmd.PersistentFlags().StringVar(&halFlag, "hal", "simulator",
		"transport to use: simulator or serial")
	rootCmd.PersistentFlags().StringVar(&serialPort, "serial-port", "/dev/ttyUSB0",
		"serial device path, used when --hal=serial")
	rootCmd.PersistentFlags().IntVar(&serialBaud, "serial-baud", serial.DefaultBaud,
		"serial baud rate, used when --hal=serial")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(dumpConfigCmd)
}

func newLogger() *zap.Logger {
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func loadConfig(log *zap.Logger) config.Config {
	if cfgFile == "" {
		return config.Default()
	}
	return config.Load(cfgFile, log)
}

func newHAL(log *zap.Logger) (hal.HAL, error) {
	switch halFlag {
	case "simulator":
		return simulator.New(), nil
	case "serial":
		return serial.New(serial.Config{Name: serialPort, Baud: serialBaud}, log), nil
	default:
		return nil, fmt.Errorf("ncictl: unknown --hal %q (want simulator or serial)", halFlag)
	}
}

// newCore builds and starts a Core against the configured HAL and
// configuration file, registering Prometheus metrics against the
// default registerer.
func newCore(cmd *cobra.Command) (*ncicore.Core, *zap.Logger, error) {
	log := newLogger()
	h, err := newHAL(log)
	if err != nil {
		return nil, nil, err
	}
	cfg := loadConfig(log)
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	core := ncicore.NewWithMetrics(h, log, m)
	core.SetOpMode(cfg.OpMode)
	core.SetTech(cfg.Tech)
	if !core.Start() {
		return nil, nil, fmt.Errorf("ncictl: failed to start transport %q", halFlag)
	}
	return core, log, nil
}

// waitForInterrupt blocks until SIGINT/SIGTERM or timeout elapses,
// whichever comes first. timeout <= 0 means wait only for the signal.
func waitForInterrupt(timeout time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	if timeout <= 0 {
		<-sigCh
		return
	}
	select {
	case <-sigCh:
	case <-time.After(timeout):
	}
}
