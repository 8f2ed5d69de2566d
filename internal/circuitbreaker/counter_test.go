package circuitbreaker

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("eventCounter", func() {
	var c *eventCounter

	// at returns a timestamp the given number of intervals past the
	// counter's origin, so specs never have to sleep.
	at := func(slots int64) time.Time {
		return c.origin.Add(time.Duration(slots) * c.interval)
	}

	BeforeEach(func() {
		// 10s window in 1s buckets
		c = newEventCounter(10*time.Second, time.Second)
	})

	It("should size the ring to cover the window", func() {
		Expect(c.buckets).To(HaveLen(10))

		// a window that is not a whole multiple of the interval rounds up
		odd := newEventCounter(2500*time.Millisecond, time.Second)
		Expect(odd.buckets).To(HaveLen(3))
	})

	It("should count successes and failures into the current window", func() {
		c.recordSuccess(at(0))
		c.recordSuccess(at(1))
		c.recordFailure(at(2))

		snap := c.snapshot(at(2))
		Expect(snap.Successes).To(Equal(uint64(2)))
		Expect(snap.Failures).To(Equal(uint64(1)))
		Expect(snap.Total()).To(Equal(uint64(3)))
	})

	It("should drop events once they slide out of the window", func() {
		c.recordFailure(at(0))
		c.recordSuccess(at(5))

		// slot 0 is still inside a window ending at slot 9
		Expect(c.snapshot(at(9)).Failures).To(Equal(uint64(1)))

		// and gone from a window ending at slot 10
		snap := c.snapshot(at(10))
		Expect(snap.Failures).To(BeZero())
		Expect(snap.Successes).To(Equal(uint64(1)))
	})

	It("should reclaim a bucket when its slot comes around again", func() {
		c.recordSuccess(at(3))
		c.recordSuccess(at(3))

		// slot 13 reuses slot 3's bucket; the old counts must not leak in
		c.recordFailure(at(13))

		snap := c.snapshot(at(13))
		Expect(snap.Successes).To(BeZero())
		Expect(snap.Failures).To(Equal(uint64(1)))
	})

	It("should discard an event older than the bucket it lands on", func() {
		c.recordSuccess(at(13))

		// slot 3 maps to the same bucket but has already rolled out
		c.recordFailure(at(3))

		snap := c.snapshot(at(13))
		Expect(snap.Successes).To(Equal(uint64(1)))
		Expect(snap.Failures).To(BeZero())
	})

	It("should compute the failure rate from the window counts", func() {
		Expect(c.snapshot(at(0)).FailureRate()).To(BeZero())

		c.recordFailure(at(0))
		c.recordFailure(at(0))
		c.recordSuccess(at(0))
		c.recordSuccess(at(0))

		Expect(c.snapshot(at(0)).FailureRate()).To(BeNumerically("~", 0.5))
	})

	It("should clear everything on reset", func() {
		c.recordSuccess(at(0))
		c.recordFailure(at(1))

		c.reset()

		Expect(c.snapshot(at(1)).Total()).To(BeZero())
	})

	It("should not lose counts under concurrent writers", func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 1000; j++ {
					c.recordSuccess(at(2))
					c.recordFailure(at(2))
				}
			}()
		}
		wg.Wait()

		snap := c.snapshot(at(2))
		Expect(snap.Successes).To(Equal(uint64(8000)))
		Expect(snap.Failures).To(Equal(uint64(8000)))
	})
})
