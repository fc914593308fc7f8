package logger

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// CustomFormatter implements logrus.Formatter interface to provide custom log format.
type CustomFormatter struct{}

// Format renders a single log entry
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02T15:04:05.000-07:00")
	level := strings.ToUpper(entry.Level.String())

	if len(entry.Data) == 0 {
		b.WriteString(fmt.Sprintf("%s | %-5s | %s\n", timestamp, level, entry.Message))
		return b.Bytes(), nil
	}

	// fields in stable order: "port=COM3 attempt=2"
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, entry.Data[k]))
	}

	b.WriteString(fmt.Sprintf("%s | %-5s | %s | %s\n", timestamp, level, strings.Join(fields, " "), entry.Message))
	return b.Bytes(), nil
}
