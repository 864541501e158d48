package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a text logger tagged with component. Unknown levels fall back
// to info.
func New(component, level string) *logrus.Entry {
	return newWithOutput(os.Stdout, component, level)
}

func newWithOutput(out io.Writer, component, level string) *logrus.Entry {
	logger := logrus.New()
	logger.Out = out
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.StampMilli,
		FullTimestamp:   true,
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger.WithField("component", component)
}
