package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Writer for audit records
type Writer interface {
	Write(r Record) error
	Close() error
}

// WriterOptions controls file rotation.
type WriterOptions struct {
	MaxSizeMB  int
	MaxBackups int
}

// fileWriter appends JSONL (one record per line)
type fileWriter struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// NewWriter opens path for appending, creating parent directories as needed.
func NewWriter(path string, opts WriterOptions) (Writer, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for audit log: %w", err)
		}
	}

	// lumberjack opens lazily; probe now so a bad path fails at startup.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	_ = f.Close()

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}

	return &fileWriter{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
	}, nil
}

// Write record
func (w *fileWriter) Write(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Close file
func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
