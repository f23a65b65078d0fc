package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// SetLevel adjusts the shared logger; unknown names leave it unchanged.
func SetLevel(name string) bool {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return false
	}
	Logger().SetLevel(lvl)
	return true
}
