package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gary-lo/circuit-breaker/internal/outcome"
)

// maxContentBuffer caps how much of the response body is retained for
// content classification. Bytes past the cap still flow to the caller, they
// just are not buffered.
const maxContentBuffer = 1 << 20

// watchedBody tees what the caller reads from a response body into a capped
// buffer. Once the body is exhausted, broken, or closed, the content
// strategy classifies the call and the verdict is reported exactly once,
// typically long after RoundTrip returned, so the calling goroutine never
// blocks on classification.
type watchedBody struct {
	body     io.ReadCloser
	res      *http.Response
	ctx      context.Context
	strategy outcome.ContentStrategy
	report   func(outcome.Outcome)

	buf  bytes.Buffer
	once sync.Once
}

func watchBody(res *http.Response, ctx context.Context, strategy outcome.ContentStrategy, report func(outcome.Outcome)) *watchedBody {
	return &watchedBody{
		body:     res.Body,
		res:      res,
		ctx:      ctx,
		strategy: strategy,
		report:   report,
	}
}

func (w *watchedBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	if n > 0 {
		if room := maxContentBuffer - w.buf.Len(); room > 0 {
			w.buf.Write(p[:min(n, room)])
		}
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			w.finish(w.strategy.ClassifyContent(w.res, w.buf.Bytes()))
		} else {
			// Body broke mid-stream: the peer accepted the call but could
			// not deliver it.
			w.finish(outcome.Failure)
		}
	}
	return n, err
}

// Close classifies on whatever content was read so far, covering callers
// that close the body without draining it.
func (w *watchedBody) Close() error {
	err := w.body.Close()
	w.finish(w.strategy.ClassifyContent(w.res, w.buf.Bytes()))
	return err
}

func (w *watchedBody) finish(o outcome.Outcome) {
	w.once.Do(func() {
		// An abandoned call says nothing about peer health.
		if w.ctx.Err() != nil {
			return
		}
		w.report(o)
	})
}
