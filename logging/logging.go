// Package logging builds the station log sink and renders runner events into
// the line-oriented log stream operators read.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/simon020286/go-calibration/config"
)

// TimeLayout is used for log line prefixes and start/end stamps
const TimeLayout = "Mon Jan 2 15:04:05 MST 2006"

// New creates the station logger. Output goes to out (stdout when nil) and,
// when cfg.File is set, to a rotated log file. The returned Closer releases the file.
func New(cfg config.LogConfig, showTimestamp bool, out io.Writer) (*logrus.Logger, io.Closer, error) {
	if out == nil {
		out = os.Stdout
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&LineFormatter{ShowTimestamp: showTimestamp})

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}
	logger.SetOutput(out)

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LineFormatter writes "[<time>] <message> k=v ..." lines
type LineFormatter struct {
	ShowTimestamp   bool
	TimestampFormat string
}

func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if f.ShowTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = TimeLayout
		}
		b.WriteString("[")
		b.WriteString(entry.Time.Format(layout))
		b.WriteString("] ")
	}

	switch entry.Level {
	case logrus.WarnLevel:
		b.WriteString("Warning: ")
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		b.WriteString("Error: ")
	}

	b.WriteString(strings.TrimRight(entry.Message, "\n"))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
