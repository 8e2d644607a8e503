// Package serialhelper gets exclusive use of the HAT's UART, which is shared
// between several devices through a multiplexer.
package serialhelper

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/internal/logging"
	"github.com/tarm/serial"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var log = logging.NewLogger("info")

const cmdlineFile = "/boot/firmware/cmdline.txt"

type SerialUnavailableError struct {
	msg string
}

func (e *SerialUnavailableError) Error() string {
	return e.msg
}

func NewSerialUnavailableError(msg string) error {
	return &SerialUnavailableError{msg: msg}
}

func SerialInUseFromTerminal() bool {
	b, err := os.ReadFile(cmdlineFile)
	if err != nil {
		log.Printf("Error when reading %s: %s", cmdlineFile, err)
		return false
	}
	return strings.Contains(string(b), "console=serial0")
}

// GetSerial will try to get a file lock on the serial port at path.
// If the file lock can be acquired, it will return the serial file and change mul0 and mul1 to the new values.
// ReleaseSerial(serialFile) should be called to release the lock and close the serial file.
func GetSerial(path string, retries int, mul0, mul1 gpio.Level, wait time.Duration) (*os.File, error) {
	if SerialInUseFromTerminal() {
		return nil, NewSerialUnavailableError("serial is in use by the terminal console")
	}

	serialFile, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	lockAcquired := false
	defer func() {
		if !lockAcquired {
			serialFile.Close()
		}
	}()

	i := retries
	for {
		err = syscall.Flock(int(serialFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			lockAcquired = true
			break
		}

		if errno, ok := err.(syscall.Errno); !ok || errno != syscall.EWOULDBLOCK {
			return nil, err
		}
		process, err := getLockingProcess(path)
		if err != nil {
			log.Printf("Error checking locking process: %v", err)
		} else if process == "" {
			log.Printf("No active process found holding the lock. Forcing lock acquisition...")
			if err := syscall.Flock(int(serialFile.Fd()), syscall.LOCK_UN); err != nil {
				return nil, fmt.Errorf("failed to force unlock: %v", err)
			}
			continue
		} else {
			log.Printf("Serial port is locked by process: %s", process)
		}

		if i <= 0 {
			return nil, NewSerialUnavailableError("failed to get lock on serial, might be in use by other process")
		}
		log.Printf("Serial port is locked by another process. Retrying %d more times in %s...", i, wait)
		time.Sleep(wait)
		i--
	}

	if err := setMultiplexer(mul0, mul1); err != nil {
		return nil, err
	}
	return serialFile, nil
}

// setMultiplexer points the UART multiplexer at a device and hands the pins
// back to the UART.
func setMultiplexer(mul0, mul1 gpio.Level) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	for name, level := range map[string]gpio.Level{"GPIO6": mul0, "GPIO12": mul1} {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return fmt.Errorf("failed to init %s pin", name)
		}
		if err := pin.Out(level); err != nil {
			return err
		}
	}
	for _, pin := range []string{"14", "15"} {
		out, err := exec.Command("raspi-gpio", "set", pin, "a0").CombinedOutput()
		if err != nil {
			return fmt.Errorf("failed to set GPIO%s to a0(UART): %v, output: %s", pin, err, out)
		}
	}
	return nil
}

func getLockingProcess(serialPath string) (string, error) {
	cmd := exec.Command("fuser", serialPath)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok && exitError.ExitCode() == 1 {
			// Exit code 1 from `fuser` means no process is using the file
			return "", nil
		}
		return "", fmt.Errorf("failed to execute fuser: %v", err)
	}
	return output.String(), nil
}

func ReleaseSerial(serialFile *os.File) error {
	err := syscall.Flock(int(serialFile.Fd()), syscall.LOCK_UN)
	return multierr.Append(err, serialFile.Close())
}

// Port is an open serial port that keeps the lock on it until closed.
type Port struct {
	*serial.Port
	lock *os.File
}

// Open locks the serial port, sets the multiplexer and opens the port.
func Open(path string, baud int, timeout time.Duration, mul0, mul1 gpio.Level) (*Port, error) {
	start := time.Now()
	lock, err := GetSerial(path, 3, mul0, mul1, time.Second)
	if err != nil {
		return nil, err
	}
	log.Debug("Serial lock took ", time.Since(start))

	port, err := serial.OpenPort(&serial.Config{Name: path, Baud: baud, ReadTimeout: timeout})
	if err != nil {
		return nil, multierr.Append(err, ReleaseSerial(lock))
	}
	return &Port{Port: port, lock: lock}, nil
}

func (p *Port) Close() error {
	return multierr.Append(p.Port.Close(), ReleaseSerial(p.lock))
}
