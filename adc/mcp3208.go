package adc

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const mcp3208Channels = 8

type spiTx interface {
	Tx(w, r []byte) error
}

// MCP3208 is a 12 bit, 8 channel SPI ADC.
type MCP3208 struct {
	mu      sync.Mutex
	conn    spiTx
	port    spi.PortCloser
	refChan int
}

// OpenMCP3208 opens the SPI port, "" for the first one found.
func OpenMCP3208(port string, speed int, refChan int) (*MCP3208, error) {
	if err := checkChannel(refChan, mcp3208Channels); err != nil {
		return nil, fmt.Errorf("reference %w", err)
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, err
	}
	c, err := p.Connect(physic.Frequency(speed)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, err
	}
	log.Debugf("Opened MCP3208 on SPI port '%s'", p)
	return &MCP3208{conn: c, port: p, refChan: refChan}, nil
}

func (m *MCP3208) ReadChannel(ch int) (uint16, error) {
	if err := checkChannel(ch, mcp3208Channels); err != nil {
		return 0, err
	}
	return m.read(ch)
}

func (m *MCP3208) ReadReference() (uint16, error) {
	return m.read(m.refChan)
}

// read does a single ended conversion. The start bit and SGL/DIFF go in the
// first byte, D2 too, then D1 and D0 at the top of the second byte. The 12
// bit result is in the low nibble of the second byte read and all of the
// third.
func (m *MCP3208) read(ch int) (uint16, error) {
	w := []byte{0x06 | byte(ch>>2), byte(ch&0x03) << 6, 0x00}
	r := make([]byte, 3)
	m.mu.Lock()
	err := m.conn.Tx(w, r)
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return uint16(r[1]&0x0F)<<8 | uint16(r[2]), nil
}

func (m *MCP3208) Close() error {
	if m.port == nil {
		return nil
	}
	return m.port.Close()
}
