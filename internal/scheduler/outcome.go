package scheduler

import (
	"net/http"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
)

// ClassifyResult maps the result of a fetch attempt to a pacing outcome.
// Classification happens here at the boundary: the pacing layer never sees
// status codes or transport errors, only the outcome category.
func ClassifyResult(resp *crawler.FetchResponse, err error) pacing.Outcome {
	if err != nil {
		return pacing.OutcomeTransportFailure
	}
	if resp == nil {
		return pacing.OutcomeTransportFailure
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return pacing.OutcomeOverloaded
	default:
		return pacing.OutcomeNormal
	}
}
