package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
	"github.com/gary-lo/circuit-breaker/internal/outcome"
	"github.com/gary-lo/circuit-breaker/internal/transport"
)

func TestTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transport Suite")
}

// sensitiveFactory builds breakers that open on a single failure, so specs
// can trip them without bulk traffic.
func sensitiveFactory(key string) (*circuitbreaker.CircuitBreaker, error) {
	return circuitbreaker.New(key, circuitbreaker.WithMinimumRequestThreshold(1))
}

var _ = Describe("Transport", func() {
	var (
		server  *httptest.Server
		status  atomic.Int64
		hits    atomic.Int64
		mapping *circuitbreaker.Mapping
		client  *http.Client
	)

	BeforeEach(func() {
		status.Store(http.StatusOK)
		hits.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))

		mapping = circuitbreaker.NewMapping(circuitbreaker.PerHost, sensitiveFactory)
		client = &http.Client{
			Transport: transport.New(nil, mapping, nil, nil),
		}
	})

	AfterEach(func() {
		server.Close()
	})

	key := func() string {
		return server.Listener.Addr().String()
	}

	It("should record a success for a 2xx response", func() {
		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		res.Body.Close()

		cb := mapping.Get(key())
		Expect(cb).NotTo(BeNil())
		Expect(cb.Snapshot().Successes).To(Equal(uint64(1)))
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
	})

	It("should record a failure for a 5xx response and open the breaker", func() {
		status.Store(http.StatusInternalServerError)

		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		res.Body.Close()

		cb := mapping.Get(key())
		Expect(cb.Snapshot().Failures).To(Equal(uint64(1)))
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
	})

	It("should not count an ignored response", func() {
		status.Store(http.StatusNotFound)

		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		res.Body.Close()

		cb := mapping.Get(key())
		Expect(cb.Snapshot().Total()).To(BeZero())
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
	})

	It("should fail fast without hitting the server once the breaker is open", func() {
		status.Store(http.StatusInternalServerError)
		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		res.Body.Close()
		Expect(hits.Load()).To(Equal(int64(1)))

		_, err = client.Get(server.URL)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, circuitbreaker.ErrCircuitOpen)).To(BeTrue())

		var openErr *circuitbreaker.OpenStateError
		Expect(errors.As(err, &openErr)).To(BeTrue())
		Expect(openErr.Name).To(Equal(key()))

		Expect(hits.Load()).To(Equal(int64(1)))
	})

	It("should not report a call whose context was cancelled", func() {
		release := make(chan struct{})
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer slow.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, slow.URL, nil)
		Expect(err).NotTo(HaveOccurred())

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		_, err = client.Do(req)
		Expect(err).To(HaveOccurred())

		cb := mapping.Get(slow.Listener.Addr().String())
		Expect(cb).NotTo(BeNil())
		Expect(cb.Snapshot().Total()).To(BeZero())
	})

	It("should propagate a factory error", func() {
		broken := circuitbreaker.NewMapping(circuitbreaker.PerHost,
			func(key string) (*circuitbreaker.CircuitBreaker, error) {
				return nil, errors.New("no breaker for you")
			})
		c := &http.Client{Transport: transport.New(nil, broken, nil, nil)}

		_, err := c.Get(server.URL)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no breaker for you"))
	})
})

// bodyStrategy fails any call whose body contains "error", regardless of
// status code.
type bodyStrategy struct{}

func (bodyStrategy) Classify(res *http.Response, err error) outcome.Outcome {
	return outcome.Default().Classify(res, err)
}

func (bodyStrategy) ClassifyContent(res *http.Response, body []byte) outcome.Outcome {
	if bytes.Contains(body, []byte("error")) {
		return outcome.Failure
	}
	return outcome.Success
}

var _ = Describe("Content classification", func() {
	var (
		server  *httptest.Server
		payload atomic.Value
		mapping *circuitbreaker.Mapping
		client  *http.Client
	)

	BeforeEach(func() {
		payload.Store(`{"ok":true}`)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(payload.Load().(string)))
		}))

		mapping = circuitbreaker.NewMapping(circuitbreaker.PerHost, sensitiveFactory)
		client = &http.Client{
			Transport: transport.New(nil, mapping, bodyStrategy{}, nil),
		}
	})

	AfterEach(func() {
		server.Close()
	})

	key := func() string {
		return server.Listener.Addr().String()
	}

	It("should report only after the body has been consumed", func() {
		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())

		cb := mapping.Get(key())
		Expect(cb.Snapshot().Total()).To(BeZero())

		_, err = io.ReadAll(res.Body)
		Expect(err).NotTo(HaveOccurred())
		res.Body.Close()

		Expect(cb.Snapshot().Successes).To(Equal(uint64(1)))
	})

	It("should classify from the body content", func() {
		payload.Store(`{"error":"out of stock"}`)

		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.ReadAll(res.Body)
		res.Body.Close()

		cb := mapping.Get(key())
		Expect(cb.Snapshot().Failures).To(Equal(uint64(1)))
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
	})

	It("should classify on close from whatever was read", func() {
		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		res.Body.Close()

		cb := mapping.Get(key())
		Expect(cb.Snapshot().Total()).To(Equal(uint64(1)))
	})

	It("should report exactly once when the body is read then closed", func() {
		res, err := client.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.ReadAll(res.Body)
		res.Body.Close()
		res.Body.Close()

		cb := mapping.Get(key())
		Expect(cb.Snapshot().Total()).To(Equal(uint64(1)))
	})
})
