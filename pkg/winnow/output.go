package winnow

import (
	"github.com/crimson-sun/winnow/internal/output"
	"github.com/crimson-sun/winnow/internal/output/file"
	"github.com/crimson-sun/winnow/internal/output/multi"
	"github.com/crimson-sun/winnow/internal/output/stdout"
	"github.com/crimson-sun/winnow/internal/output/webhook"
)

// Output receives the events a Sampler keeps. Write is called with batches
// and must be safe for concurrent use.
type Output = output.Output

// NewStdoutOutput writes kept events to standard output, one per line.
// format is "json" or "text"; unknown names fall back to JSON.
func NewStdoutOutput(format string) Output {
	f, _ := output.ParseFormat(format)
	return stdout.New(f, false)
}

// NewFileOutput writes kept events to a size-rotated log file at path.
func NewFileOutput(path, format string) Output {
	f, _ := output.ParseFormat(format)
	return file.New(path, f)
}

// NewWebhookOutput POSTs kept events to url as JSON arrays, batched and
// flushed on an interval. headers are sent with every request and may be
// nil.
func NewWebhookOutput(url string, headers map[string]string) Output {
	return webhook.New(url, webhook.WithHeaders(headers))
}

// NewMultiOutput fans every batch out to all of the given outputs.
func NewMultiOutput(outputs ...Output) Output {
	return multi.New(outputs...)
}
