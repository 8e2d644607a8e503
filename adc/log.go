package adc

import "github.com/TheCacophonyProject/tc2-cell-monitor/internal/logging"

var log = logging.NewLogger("info")

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	log = l
}
