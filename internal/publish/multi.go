package publish

import (
	"context"
	"errors"
)

// Multi sends each record to every publisher. A failing publisher does not
// stop the others.
type Multi struct {
	pubs []Publisher
}

// Compile-time interface satisfaction check.
var _ Publisher = (*Multi)(nil)

// NewMulti fans out to pubs in order.
func NewMulti(pubs ...Publisher) *Multi {
	return &Multi{pubs: pubs}
}

// Publish returns the joined errors of all publishers.
func (m *Multi) Publish(ctx context.Context, rec Record) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
