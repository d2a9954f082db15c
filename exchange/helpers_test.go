package exchange

import (
	"time"

	"github.com/go-resty/resty/v2"

	"jax-feed/libs/resilience"
)

func newTestRestyClient(baseURL string) *resty.Client {
	return resty.New().SetBaseURL(baseURL).SetTimeout(5 * time.Second)
}

func newTestCircuitBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.DefaultConfig("test-rest"))
}
