// Package winnow provides adaptive log sampling: repetitive log traffic is
// sampled down while rare patterns, errors, and anomalies keep flowing.
//
// Quick start:
//
//	s, err := winnow.New("checkout",
//	    winnow.WithBackend("http://winnowd.internal:8080", os.Getenv("WINNOW_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	d := s.Decide("user 4217 logged in", winnow.SeverityInfo)
//	if d.Sampled {
//	    // emit the log line
//	}
//
// Every message is observed for pattern statistics whether or not it is
// sampled, so the backend sees true traffic volumes. ERROR and CRITICAL
// events are always sampled. Without a backend the sampler keeps everything
// until a local policy is installed with WithPolicy or SetPolicy.
//
// The Sampler is safe for concurrent use. Create one per service per
// process and reuse it across requests. To sample an existing log/slog
// setup, wrap its handler with NewHandler.
package winnow
