package cellmonitor

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
	"github.com/sigurn/crc8"
)

var (
	errCalibrationCRC = errors.New("calibration file CRC check failed")
	crcTable          = crc8.MakeTable(crc8.CRC8_MAXIM)
)

type calibrationFile struct {
	CellScale []uint32  `json:"cell_scale"`
	ScaleBits uint      `json:"scale_bits"`
	Updated   time.Time `json:"updated"`
	CRC       uint8     `json:"crc"`
}

func scalesCRC(scales []uint32, bits uint) uint8 {
	data := make([]byte, 0, 4*len(scales)+1)
	data = append(data, byte(bits))
	for _, s := range scales {
		data = binary.BigEndian.AppendUint32(data, s)
	}
	return crc8.Checksum(data, crcTable)
}

// loadParams reads the calibration file. If it doesn't exist the scales are
// worked out from the configured divider resistors.
func loadParams(conf *Config) (*lipo.Params, error) {
	raw, err := os.ReadFile(conf.CalibrationFile)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("No calibration file '%s', using divider values", conf.CalibrationFile)
		return paramsFromDividers(conf)
	} else if err != nil {
		return nil, err
	}

	var c calibrationFile
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file: %w", err)
	}
	if scalesCRC(c.CellScale, c.ScaleBits) != c.CRC {
		return nil, errCalibrationCRC
	}
	if c.ScaleBits != conf.ScaleBits {
		return nil, fmt.Errorf("calibration uses %d scale bits, config has %d", c.ScaleBits, conf.ScaleBits)
	}
	if len(c.CellScale) < conf.Channels {
		return nil, fmt.Errorf("calibration has %d cells, config has %d", len(c.CellScale), conf.Channels)
	}
	log.Debugf("Loaded calibration from %s, last updated %s", conf.CalibrationFile, c.Updated.Format(time.RFC3339))
	return &lipo.Params{CellScale: c.CellScale}, nil
}

func paramsFromDividers(conf *Config) (*lipo.Params, error) {
	if len(conf.DividerR1) < conf.Channels || len(conf.DividerR2) < conf.Channels {
		return nil, fmt.Errorf("need divider values for %d channels, have %d r1 and %d r2",
			conf.Channels, len(conf.DividerR1), len(conf.DividerR2))
	}
	params := &lipo.Params{CellScale: make([]uint32, conf.Channels)}
	for i := range params.CellScale {
		scale, err := lipo.ScaleFromDivider(conf.DividerR1[i], conf.DividerR2[i], conf.ScaleBits)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		params.CellScale[i] = scale
	}
	return params, nil
}

// saveParams writes the calibration to a temporary file and moves it over
// the old one.
func saveParams(path string, params *lipo.Params, bits uint) error {
	c := calibrationFile{
		CellScale: params.CellScale,
		ScaleBits: bits,
		Updated:   time.Now().Truncate(time.Second),
		CRC:       scalesCRC(params.CellScale, bits),
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
