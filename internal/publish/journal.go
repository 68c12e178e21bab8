package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrJournalClosed is returned by Publish after Close.
var ErrJournalClosed = errors.New("publish: journal closed")

// JournalPublisher appends records to a file as a stream of CBOR items.
// It is safe for concurrent use.
type JournalPublisher struct {
	path    string
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// Compile-time interface satisfaction check.
var _ Publisher = (*JournalPublisher)(nil)

// NewJournalPublisher opens path for appending, creating it and its parent
// directory if needed.
func NewJournalPublisher(path string) (*JournalPublisher, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("publish: create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("publish: open journal: %w", err)
	}
	return &JournalPublisher{
		path:    path,
		file:    f,
		encoder: newEncoder(f),
	}, nil
}

// Path returns the journal file path.
func (j *JournalPublisher) Path() string { return j.path }

func (j *JournalPublisher) Publish(_ context.Context, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}
	if err := j.encoder.Encode(rec); err != nil {
		return fmt.Errorf("publish: write journal: %w", err)
	}
	return nil
}

// Close closes the journal file. It is safe to call more than once.
func (j *JournalPublisher) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// ReadJournal returns every record in the journal at path, oldest first.
func ReadJournal(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("publish: open journal: %w", err)
	}
	defer f.Close()

	var records []Record
	dec := newDecoder(f)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("publish: read journal record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}
