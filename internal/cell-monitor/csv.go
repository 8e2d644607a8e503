package cellmonitor

import (
	"fmt"
	"os"
	"strings"

	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
)

func csvLine(r lipo.Reading) string {
	fields := []string{
		r.Time.Format("2006-01-02 15:04:05"),
		fmt.Sprint(r.Samples),
		fmt.Sprint(r.Reference),
		fmt.Sprint(r.NumCells),
	}
	for _, c := range r.Cells {
		fields = append(fields, fmt.Sprint(c))
	}
	return strings.Join(fields, ", ")
}

func appendCSV(filePath string, r lipo.Reading) error {
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(csvLine(r) + "\n"); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// keepLastLines keeps the last `maxLines` lines of the specified file.
func keepLastLines(filePath string, maxLines int) error {
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= maxLines {
		return nil
	}
	lines = lines[len(lines)-max(maxLines, 0):]

	tmpFile := filePath + ".tmp"
	if err := os.WriteFile(tmpFile, []byte(strings.Join(lines, "")), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to replace '%s': %w", filePath, err)
	}
	return nil
}
