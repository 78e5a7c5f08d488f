package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/crimson-sun/winnow/internal/model"
	"github.com/crimson-sun/winnow/internal/output"
)

// Output writes kept events to stdout, one line per event.
type Output struct {
	w      io.Writer
	format output.Format
	pretty bool
}

// New creates a stdout Output in the given format. pretty indents JSON
// output; it has no effect on text.
func New(format output.Format, pretty bool) *Output {
	return &Output{w: os.Stdout, format: format, pretty: pretty}
}

func (o *Output) Write(_ context.Context, events []model.LogEvent) error {
	for _, e := range events {
		var line []byte
		var err error
		if o.pretty && o.format == output.FormatJSON {
			line, err = json.MarshalIndent(e, "", "  ")
		} else {
			line, err = output.EncodeEvent(e, o.format)
		}
		if err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
		line = append(line, '\n')
		if _, err := o.w.Write(line); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
