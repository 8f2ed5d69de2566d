package circuitbreaker_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
)

var _ = Describe("Mapping", func() {
	newRequest := func(method, url string) *http.Request {
		return httptest.NewRequest(method, url, nil)
	}

	Describe("Key selectors", func() {
		It("should key by host", func() {
			r := newRequest(http.MethodGet, "http://api.example.com/v1/orders")
			Expect(circuitbreaker.PerHost(r)).To(Equal("api.example.com"))
		})

		It("should include the port in the host key", func() {
			r := newRequest(http.MethodGet, "http://api.example.com:8443/v1/orders")
			Expect(circuitbreaker.PerHost(r)).To(Equal("api.example.com:8443"))
		})

		It("should key by method", func() {
			r := newRequest(http.MethodPost, "http://api.example.com/v1/orders")
			Expect(circuitbreaker.PerMethod(r)).To(Equal("POST"))
		})

		It("should key by host and method", func() {
			r := newRequest(http.MethodDelete, "http://api.example.com/v1/orders/42")
			Expect(circuitbreaker.PerHostAndMethod(r)).To(Equal("api.example.com#DELETE"))
		})
	})

	Describe("Resolve", func() {
		var (
			mapping *circuitbreaker.Mapping
			created atomic.Int64
		)

		BeforeEach(func() {
			created.Store(0)
			mapping = circuitbreaker.NewMapping(circuitbreaker.PerHost,
				func(key string) (*circuitbreaker.CircuitBreaker, error) {
					created.Add(1)
					return circuitbreaker.New(key)
				})
		})

		It("should return the same breaker for the same key", func() {
			a, err := mapping.Resolve(newRequest(http.MethodGet, "http://orders.internal/list"))
			Expect(err).NotTo(HaveOccurred())
			b, err := mapping.Resolve(newRequest(http.MethodPost, "http://orders.internal/create"))
			Expect(err).NotTo(HaveOccurred())

			Expect(a).To(BeIdenticalTo(b))
			Expect(created.Load()).To(Equal(int64(1)))
		})

		It("should return distinct breakers for distinct keys", func() {
			a, err := mapping.Resolve(newRequest(http.MethodGet, "http://orders.internal/"))
			Expect(err).NotTo(HaveOccurred())
			b, err := mapping.Resolve(newRequest(http.MethodGet, "http://payments.internal/"))
			Expect(err).NotTo(HaveOccurred())

			Expect(a).NotTo(BeIdenticalTo(b))
			Expect(a.Name()).To(Equal("orders.internal"))
			Expect(b.Name()).To(Equal("payments.internal"))
		})

		It("should invoke the factory once per key under concurrent resolution", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := mapping.Resolve(newRequest(http.MethodGet, "http://orders.internal/"))
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(created.Load()).To(Equal(int64(1)))
		})

		It("should propagate a factory error and retry on the next resolution", func() {
			attempts := 0
			failing := circuitbreaker.NewMapping(circuitbreaker.PerHost,
				func(key string) (*circuitbreaker.CircuitBreaker, error) {
					attempts++
					if attempts == 1 {
						return nil, errors.New("factory unavailable")
					}
					return circuitbreaker.New(key)
				})

			_, err := failing.Resolve(newRequest(http.MethodGet, "http://orders.internal/"))
			Expect(err).To(MatchError("factory unavailable"))

			cb, err := failing.Resolve(newRequest(http.MethodGet, "http://orders.internal/"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cb).NotTo(BeNil())
		})
	})

	Describe("Introspection", func() {
		It("should expose cached breakers and their states", func() {
			mapping := circuitbreaker.NewMapping(circuitbreaker.PerHost,
				func(key string) (*circuitbreaker.CircuitBreaker, error) {
					return circuitbreaker.New(key, circuitbreaker.WithMinimumRequestThreshold(1))
				})

			Expect(mapping.Get("orders.internal")).To(BeNil())

			cb, err := mapping.Resolve(newRequest(http.MethodGet, "http://orders.internal/"))
			Expect(err).NotTo(HaveOccurred())
			Expect(mapping.Get("orders.internal")).To(BeIdenticalTo(cb))

			cb.OnFailure()
			Expect(mapping.States()).To(Equal(map[string]circuitbreaker.State{
				"orders.internal": circuitbreaker.StateOpen,
			}))
		})

		It("should drop all breakers on reset", func() {
			mapping := circuitbreaker.NewMapping(circuitbreaker.PerHost,
				func(key string) (*circuitbreaker.CircuitBreaker, error) {
					return circuitbreaker.New(key)
				})

			_, err := mapping.Resolve(newRequest(http.MethodGet, "http://orders.internal/"))
			Expect(err).NotTo(HaveOccurred())

			mapping.Reset()
			Expect(mapping.Get("orders.internal")).To(BeNil())
			Expect(mapping.States()).To(BeEmpty())
		})
	})
})
