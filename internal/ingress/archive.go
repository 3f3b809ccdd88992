package ingress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/domain"
)

// Archiver appends raw telemetry lines to per-sink gzip files, one file
// per day. Servers without a configured sink are skipped.
type Archiver struct {
	// sinks maps a configured server address to its sink path prefix;
	// resolve maps a raw datagram source onto a configured address.
	sinks   map[string]string
	resolve func(source string) (string, error)

	sources map[string]string // resolved source cache, touched only by Handle

	mu      sync.Mutex
	writers map[string]*archiveWriter
}

type archiveWriter struct {
	day  string
	file *os.File
	gz   *gzip.Writer
}

// NewArchiver creates an archiver for the given address->sink mapping.
// resolve maps a datagram source address onto a configured server
// address; sources come from an ephemeral socket, so their port may
// differ from the address the server was configured with.
func NewArchiver(sinks map[string]string, resolve func(source string) (string, error)) *Archiver {
	return &Archiver{
		sinks:   sinks,
		resolve: resolve,
		sources: make(map[string]string),
		writers: make(map[string]*archiveWriter),
	}
}

// Handle is the broker subscriber entry point
func (a *Archiver) Handle(event domain.Event) {
	sink, ok := a.sinkFor(event.Server)
	if !ok {
		return
	}

	if err := a.append(sink, event); err != nil {
		log.Warn().Err(err).Str("server", event.Server).Msg("Failed to archive telemetry line")
	}
}

func (a *Archiver) sinkFor(source string) (string, bool) {
	addr, ok := a.sources[source]
	if !ok {
		resolved, err := a.resolve(source)
		if err != nil {
			return "", false
		}
		a.sources[source] = resolved
		addr = resolved
	}
	sink, ok := a.sinks[addr]
	return sink, ok && sink != ""
}

func (a *Archiver) append(sink string, event domain.Event) error {
	day := event.Timestamp.UTC().Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.writers[sink]
	if ok && w.day != day {
		a.closeWriterLocked(sink, w)
		ok = false
	}
	if !ok {
		var err error
		if w, err = openArchive(sink, day); err != nil {
			return err
		}
		a.writers[sink] = w
	}

	line := event.Timestamp.UTC().Format(time.RFC3339) + " " + event.Raw + "\n"
	if _, err := w.gz.Write([]byte(line)); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return nil
}

func openArchive(sink, day string) (*archiveWriter, error) {
	path := fmt.Sprintf("%s-%s.log.gz", sink, day)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	// Appending starts a new gzip member; decompressors handle
	// multi-member files transparently.
	return &archiveWriter{day: day, file: file, gz: gzip.NewWriter(file)}, nil
}

func (a *Archiver) closeWriterLocked(sink string, w *archiveWriter) {
	if err := w.gz.Close(); err != nil {
		log.Warn().Err(err).Str("sink", sink).Msg("Failed to flush archive")
	}
	w.file.Close()
	delete(a.writers, sink)
}

// Close flushes and closes all open archives
func (a *Archiver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sink, w := range a.writers {
		a.closeWriterLocked(sink, w)
	}
}
