/*
tc2-cell-monitor - Monitors LiPo cell voltages through resistor dividers.
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package cellmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/tc2-cell-monitor/adc"
	"github.com/TheCacophonyProject/tc2-cell-monitor/internal/logging"
	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
	arg "github.com/alexflint/go-arg"
	"go.uber.org/multierr"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	Calibrate *CalibrateCmd `arg:"subcommand:calibrate" help:"Calibrate a cell against a known voltage and save the result."`
	Once      *OnceCmd      `arg:"subcommand:once" help:"Take one reading, print it as JSON and exit."`
	ConfigDir string        `arg:"-c,--config" help:"configuration folder"`
	Simulate  bool          `arg:"--simulate" help:"Read from a simulated pack instead of the ADC."`
	logging.LogArgs
}

type CalibrateCmd struct {
	Cell       int    `arg:"--cell,required" help:"Cell to calibrate, 0 is the bottom of the pack."`
	Millivolts uint32 `arg:"--millivolts,required" help:"Voltage from ground to the top of the cell in mV."`
}

type OnceCmd struct{}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	ConfigDir: goconfig.DefaultConfigDir,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) (err error) {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log = logging.NewLogger(args.LogLevel)
	adc.SetLogger(log)

	log.Info("Running version: ", version)

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	if args.Simulate {
		log.Info("Using a simulated pack")
		conf.ADC.Type = adc.TypeSimulated
	}

	params, err := loadParams(conf)
	if err != nil {
		return err
	}
	log.Debug("Cell scales: ", params.CellScale)

	dev, err := adc.Open(conf.ADC, conf.Monitor(), params)
	if err != nil {
		return fmt.Errorf("failed to open %s ADC: %w", conf.ADC.Type, err)
	}
	defer func() {
		err = multierr.Append(err, dev.Close())
	}()

	clock := lipo.NewSystemClock()
	monitor, err := lipo.New(dev, clock, params, conf.Monitor())
	if err != nil {
		return err
	}
	p := newPoller(monitor, clock, params, conf)

	switch {
	case args.Calibrate != nil:
		return runCalibrate(p, args.Calibrate)
	case args.Once != nil:
		return runOnce(p)
	}

	go func() {
		if err := checkConfigChanges(conf, args.ConfigDir); err != nil {
			log.Error("Not watching config for changes: ", err)
		}
	}()

	if err := startService(p); err != nil {
		return err
	}

	log.Infof("Monitoring %d channels from channel %d, gate time %s",
		conf.Channels, conf.StartChannel, conf.GateTime)
	return p.run(make(chan struct{}))
}

func runCalibrate(p *poller, cmd *CalibrateCmd) error {
	log.Infof("Calibrating cell %d to %dmV, this takes %s", cmd.Cell, cmd.Millivolts, p.monitor.GateTime())
	scale, err := p.calibrate(cmd.Cell, cmd.Millivolts)
	if err != nil {
		return err
	}
	fmt.Printf("Cell %d scale: %d\n", cmd.Cell, scale)
	return nil
}

// runOnce polls until the first window is done and prints the reading.
func runOnce(p *poller) error {
	deadline := time.Now().Add(p.conf.GateTime*2 + time.Second)
	for time.Now().Before(deadline) {
		reading, err := p.poll()
		if err != nil {
			return err
		}
		if reading != nil {
			out, err := json.MarshalIndent(reading, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		time.Sleep(p.conf.PollInterval)
	}
	return errors.New("timed out waiting for a reading")
}
