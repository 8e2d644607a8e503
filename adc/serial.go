package adc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/serialhelper"
	"periph.io/x/conn/v3/gpio"
)

// Multiplexer position of the cell monitor microcontroller on the HAT UART.
const (
	serialMul0 = gpio.Low
	serialMul1 = gpio.High
)

var errSerialResponse = errors.New("bad response from serial ADC")

// Serial is an ADC on a microcontroller answering line based requests over
// UART. "adc <ch>" reads a channel and "ref" the reference, the reply is the
// raw code in decimal or "err <reason>".
type Serial struct {
	mu        sync.Mutex
	w         io.Writer
	r         *bufio.Reader
	closer    io.Closer
	fullScale uint32
}

func OpenSerial(path string, baud int, timeout time.Duration, fullScale uint32) (*Serial, error) {
	port, err := serialhelper.Open(path, baud, timeout, serialMul0, serialMul1)
	if err != nil {
		return nil, err
	}
	return newSerial(port, port, fullScale), nil
}

func newSerial(rw io.ReadWriter, closer io.Closer, fullScale uint32) *Serial {
	return &Serial{
		w:         rw,
		r:         bufio.NewReader(rw),
		closer:    closer,
		fullScale: fullScale,
	}
}

func (s *Serial) ReadChannel(ch int) (uint16, error) {
	if ch < 0 {
		return 0, fmt.Errorf("invalid channel %d", ch)
	}
	return s.request(fmt.Sprintf("adc %d", ch))
}

func (s *Serial) ReadReference() (uint16, error) {
	return s.request("ref")
}

func (s *Serial) request(cmd string) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, cmd+"\n"); err != nil {
		return 0, err
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("reading response to '%s': %w", cmd, err)
	}
	line = strings.TrimSpace(line)
	if reason, found := strings.CutPrefix(line, "err"); found {
		return 0, fmt.Errorf("%w to '%s':%s", errSerialResponse, cmd, reason)
	}
	code, err := strconv.ParseUint(line, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w to '%s': '%s'", errSerialResponse, cmd, line)
	}
	if uint32(code) > s.fullScale {
		return 0, fmt.Errorf("%w to '%s': %d over full scale %d", errSerialResponse, cmd, code, s.fullScale)
	}
	return uint16(code), nil
}

func (s *Serial) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
