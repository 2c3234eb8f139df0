package testlog

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/hostkernel/internal/logging"
	"github.com/rs/zerolog"
)

// Start returns the test-profile logger tagged with the running test name.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logger := logging.ConfigureTests().With().Str("test", t.Name()).Logger()
	logger.Debug().Msg("testlog.Start")
	return logger
}

// Buffer is a goroutine-safe log sink for assertions on emitted entries.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Count returns how many captured lines contain substr.
func (b *Buffer) Count(substr string) int {
	n := 0
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// Capture returns a JSON logger writing into a Buffer.
func Capture(t *testing.T) (zerolog.Logger, *Buffer) {
	t.Helper()
	buf := &Buffer{}
	logger := zerolog.New(buf).Level(zerolog.DebugLevel).With().Str("test", t.Name()).Logger()
	return logger, buf
}
