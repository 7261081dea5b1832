package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketState/internal/domain/models"
	domsvc "MarketState/internal/domain/service"
	xhttp "MarketState/pkg/http"
)

const describePath = "/describe"

// HTTPNarrator asks an external text service to describe the newest
// percentile ranks.
type HTTPNarrator struct {
	base    *HTTPServiceBase
	retries int
}

var _ domsvc.Narrator = (*HTTPNarrator)(nil)

type narrativeRequest struct {
	Symbol      string   `json:"symbol"`
	Potential   *float64 `json:"potential"`
	Momentum    *float64 `json:"momentum"`
	Entropy     *float64 `json:"entropy"`
	Temperature *float64 `json:"temperature"`
}

type narrativeResponse struct {
	Text string `json:"text"`
}

// NewHTTPNarrator posts to url + "/describe". With an empty url every call
// fails with ErrNotConfigured.
func NewHTTPNarrator(url string, timeout time.Duration, retries int, opts ...xhttp.ClientOption) *HTTPNarrator {
	return &HTTPNarrator{base: NewHTTPServiceBase(url, timeout, opts...), retries: retries}
}

func (n *HTTPNarrator) Describe(ctx context.Context, symbol string, p models.Percentiles) (string, error) {
	var resp narrativeResponse
	err := n.base.PostJSONWithRetry(ctx, describePath, narrativeRequest{
		Symbol:      symbol,
		Potential:   p.Potential,
		Momentum:    p.Momentum,
		Entropy:     p.Entropy,
		Temperature: p.Temperature,
	}, &resp, n.retries)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", symbol, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
