package cellmonitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/adc"
	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

const (
	ConfigFileName = "cell-monitor.toml"
	configKey      = "cell-monitor"
)

// Config is the [cell-monitor] section of the config file.
type Config struct {
	Channels            int           `mapstructure:"channels"`
	StartChannel        int           `mapstructure:"start-channel"`
	GateTime            time.Duration `mapstructure:"gate-time"`
	MinCellMillivolts   uint32        `mapstructure:"min-cell-millivolts"`
	ReferenceMillivolts uint32        `mapstructure:"reference-millivolts"`
	ScaleBits           uint          `mapstructure:"scale-bits"`
	Resolution          uint          `mapstructure:"resolution"`

	// Divider resistors of each cell, used when there is no calibration yet.
	DividerR1 []float64 `mapstructure:"divider-r1"`
	DividerR2 []float64 `mapstructure:"divider-r2"`

	PollInterval      time.Duration `mapstructure:"poll-interval"`
	LogInterval       time.Duration `mapstructure:"log-interval"`
	CSVFile           string        `mapstructure:"csv-file"`
	MaxCSVLines       int           `mapstructure:"max-csv-lines"`
	CalibrationFile   string        `mapstructure:"calibration-file"`
	LowCellMillivolts uint32        `mapstructure:"low-cell-millivolts"`

	ADC adc.Config `mapstructure:"adc"`
}

var (
	defaultDividerR1 = []float64{10000, 20000, 33000, 47000, 56000, 75000}
	defaultDividerR2 = []float64{10000, 10000, 10000, 10000, 10000, 10000}
)

func DefaultConfig() Config {
	l := lipo.DefaultConfig()
	a := adc.DefaultConfig()
	a.SimulatedCells = nil
	return Config{
		Channels:            l.Channels,
		StartChannel:        l.StartChannel,
		GateTime:            l.GateTime,
		MinCellMillivolts:   l.MinCellMillivolts,
		ReferenceMillivolts: l.ReferenceMillivolts,
		ScaleBits:           l.ScaleBits,
		Resolution:          l.Resolution,
		PollInterval:        10 * time.Millisecond,
		LogInterval:         5 * time.Minute,
		CSVFile:             "/var/log/cell-voltages.csv",
		MaxCSVLines:         5000,
		CalibrationFile:     "/etc/cacophony/cell-calibration.json",
		LowCellMillivolts:   3300,
		ADC:                 a,
	}
}

// ParseConfig reads the config file in configDir. A missing file gives the
// default config.
func ParseConfig(configDir string) (*Config, error) {
	conf := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(filepath.Join(configDir, ConfigFileName))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debugf("No config file in '%s', using defaults", configDir)
	} else if err := v.UnmarshalKey(configKey, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Slices are filled in after decoding so a shorter list in the file
	// doesn't get merged with the defaults.
	if len(conf.DividerR1) == 0 && len(conf.DividerR2) == 0 {
		conf.DividerR1 = append([]float64(nil), defaultDividerR1[:min(conf.Channels, len(defaultDividerR1))]...)
		conf.DividerR2 = append([]float64(nil), defaultDividerR2[:min(conf.Channels, len(defaultDividerR2))]...)
	}
	if len(conf.ADC.SimulatedCells) == 0 {
		conf.ADC.SimulatedCells = adc.DefaultConfig().SimulatedCells
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) Validate() error {
	if err := c.Monitor().Validate(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.GateTime < c.PollInterval {
		return fmt.Errorf("gate time %s is shorter than the poll interval %s", c.GateTime, c.PollInterval)
	}
	return nil
}

// Monitor returns the lipo.Config part of the config.
func (c *Config) Monitor() lipo.Config {
	return lipo.Config{
		Channels:            c.Channels,
		StartChannel:        c.StartChannel,
		GateTime:            c.GateTime,
		MinCellMillivolts:   c.MinCellMillivolts,
		ReferenceMillivolts: c.ReferenceMillivolts,
		ScaleBits:           c.ScaleBits,
		Resolution:          c.Resolution,
	}
}

// checkConfigChanges will compare the config from when first loaded to a new config each time
// the config file is written.
// If there is a difference then the program will exit and systemd will restart the service, causing
// the new config to be loaded.
func checkConfigChanges(conf *Config, configDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// The directory is watched as editors replace the file rather than writing to it.
	if err := watcher.Add(configDir); err != nil {
		return err
	}

	configFile := filepath.Join(configDir, ConfigFileName)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != configFile || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			newConfig, err := ParseConfig(configDir)
			if err != nil {
				log.Error("error reloading config:", err)
				continue
			}
			diff := cmp.Diff(conf, newConfig)
			log.Debug("Config diff:", diff)
			if diff != "" {
				log.Info("Config changed. Exiting to allow systemctl to restart service.")
				os.Exit(0)
			}
			log.Info("No relevant changes detected in config file.")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error:", err)
		}
	}
}
