package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	LogFileName  = "context_capture_debug.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Setup enables file logging next to the working directory with size-based
// rotation (10MB, max 3 archives). When disabled, logs are discarded so the
// CLI's stdout stays clean.
func Setup(enableFileLogging bool) {
	if !enableFileLogging {
		log.SetOutput(io.Discard)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		return
	}
	w, err := NewRotatingWriter(LogFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// RotatingWriter appends to path and shifts it to path.1..path.3 once it
// would exceed the size limit.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	maxSize int64
}

func NewRotatingWriter(path string) (*RotatingWriter, error) {
	return newRotatingWriter(path, maxSizeBytes)
}

func newRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	rotateIfNeeded(path, maxSize)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return &RotatingWriter{path: path, f: f, maxSize: maxSize}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > w.maxSize {
		_ = w.f.Close()
		rotate(w.path)
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func rotateIfNeeded(path string, maxSize int64) {
	if st, err := os.Stat(path); err == nil && st.Size() > maxSize {
		rotate(path)
	}
}

func rotate(path string) {
	// remove oldest, shift the rest, move current to .1
	_ = os.Remove(archiveName(path, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(path, i), archiveName(path, i+1))
	}
	_ = os.Rename(path, archiveName(path, 1))
}

func archiveName(path string, n int) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.%d", filepath.Base(path), n))
}

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if k == "" {
		return ""
	}
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}
