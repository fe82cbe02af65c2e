package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log = newLogger()

func newLogger() *logrus.Logger {
	log := logrus.New()
	// stdout is left to command output
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:      true,
		DisableTimestamp: true,
	})

	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fieldHook stamps one fixed field on every entry.
type fieldHook struct {
	key   string
	value interface{}
}

func (h fieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h fieldHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data[h.key]; !ok {
		e.Data[h.key] = h.value
	}
	return nil
}

// SetRun tags every following entry of Log with the run id.
func SetRun(id string) {
	Log.AddHook(fieldHook{key: "run", value: id})
}
