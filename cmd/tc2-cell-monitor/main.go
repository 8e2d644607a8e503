package main

import (
	"os"

	cellmonitor "github.com/TheCacophonyProject/tc2-cell-monitor/internal/cell-monitor"
	"github.com/TheCacophonyProject/tc2-cell-monitor/internal/logging"
)

var version = "<not set>"

var log = logging.NewLogger("info")

func main() {
	if err := cellmonitor.Run(os.Args[1:], version); err != nil {
		log.Fatal(err)
	}
}
