package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// Setup configures the shared logger. The first call wins; later calls return
// the already-configured logger.
func Setup(level string) zerolog.Logger {
	loggerOnce.Do(func() {
		lvl, err := zerolog.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		logger = zerolog.New(os.Stdout).
			Level(lvl).
			With().
			Timestamp().
			Str("service", "forecourt-api").
			Logger()
	})
	return logger
}

// Logger returns the shared structured logger used across the service.
func Logger() zerolog.Logger {
	return Setup("")
}
