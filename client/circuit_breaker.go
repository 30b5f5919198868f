package client

import (
	"time"

	"github.com/pior/kvserver/wire"
	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerConfig returns a function that creates one circuit breaker
// per server. The breaker trips when at least 3 requests were seen in the
// interval and 60% of them failed at the transport level. Protocol outcomes
// such as misses or rejections never count as failures.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) *gobreaker.CircuitBreaker[*wire.Message] {
	return func(serverAddr string) *gobreaker.CircuitBreaker[*wire.Message] {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !wire.ShouldCloseConnection(err)
			},
		}
		return gobreaker.NewCircuitBreaker[*wire.Message](settings)
	}
}
