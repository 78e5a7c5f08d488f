// Package output delivers the log events a sampler keeps to their
// destinations.
package output

import (
	"context"

	"github.com/crimson-sun/winnow/internal/model"
)

// Output defines the interface for kept-event destinations.
type Output interface {
	Write(ctx context.Context, events []model.LogEvent) error
	Close() error
}
