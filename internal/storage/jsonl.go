// Package storage mirrors captured traffic metadata to date-organized JSONL
// files on disk. Mirroring is best-effort: a full buffer drops records
// instead of blocking the capture path.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONLWriter appends JSON lines asynchronously to a per-day file under
// baseDir/<date>/<subDir>/<fileBase>.jsonl, rotating by size via lumberjack.
type JSONLWriter struct {
	baseDir   string
	subDir    string
	fileBase  string
	maxSizeMB int

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	out         *lumberjack.Logger
}

// NewJSONLWriter starts the write loop. fileBase names the file within the
// date directory, without extension.
func NewJSONLWriter(baseDir, subDir, fileBase string, bufferSize, maxSizeMB int) *JSONLWriter {
	w := &JSONLWriter{
		baseDir:   baseDir,
		subDir:    subDir,
		fileBase:  fileBase,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Write queues a record. It never blocks: when the buffer is full the record
// is dropped with a warning.
func (w *JSONLWriter) Write(record any) error {
	select {
	case w.writeCh <- record:
		return nil
	case <-w.done:
		return fmt.Errorf("writer is closed")
	default:
		slog.Warn("mirror buffer full, dropping record", "subdir", w.subDir)
		return fmt.Errorf("buffer full")
	}
}

// Close stops the write loop, drains what it can, and closes the file.
func (w *JSONLWriter) Close() error {
	close(w.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("mirror close timeout, some records may be lost", "subdir", w.subDir)
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out != nil {
		return w.out.Close()
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to marshal mirror record", "error", err, "subdir", w.subDir)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")
	if w.out == nil || date != w.currentDate {
		w.openForDate(date)
	}
	if w.out == nil {
		return
	}

	if _, err := w.out.Write(append(data, '\n')); err != nil {
		slog.Error("failed to write mirror record", "error", err, "subdir", w.subDir)
	}
}

func (w *JSONLWriter) openForDate(date string) {
	if w.out != nil {
		w.out.Close()
		w.out = nil
	}

	dir := filepath.Join(w.baseDir, date, w.subDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create mirror directory", "error", err, "dir", dir)
		return
	}

	filename := filepath.Join(dir, w.fileBase+".jsonl")
	w.out = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	w.currentDate = date
	slog.Info("opened mirror file", "file", filename, "subdir", w.subDir)
}
