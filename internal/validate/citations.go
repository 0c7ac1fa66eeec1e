// Package validate checks that the citations attached to a verdict point at
// reachable sources. The checks are advisory: an unreachable citation never
// blocks a consensus verdict, it only lowers trust in it.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/util"
)

const checkMaxRetries = 3

// checkSleepFunc is the sleep function used between retries (injectable for tests)
var checkSleepFunc = time.Sleep

// CitationCheck is the result of probing one citation's locator
type CitationCheck struct {
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`

	// Synthetic marks non-probeable locators, like the about:blank
	// placeholder in an insufficient-evidence verdict
	Synthetic bool `json:"synthetic,omitempty"`
}

// Checker probes citation locators concurrently
type Checker struct {
	httpClient *http.Client
	maxWorkers int
}

// NewChecker creates a citation checker
func NewChecker(timeout time.Duration, maxWorkers int, httpProxy, httpsProxy, noProxy string) *Checker {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	return &Checker{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		maxWorkers: maxWorkers,
	}
}

// Check probes every citation concurrently and returns results in input order
func (c *Checker) Check(ctx context.Context, citations []model.Citation) []CitationCheck {
	if len(citations) == 0 {
		return []CitationCheck{}
	}

	results := make([]CitationCheck, len(citations))
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, c.maxWorkers)
	for i, cit := range citations {
		wg.Add(1)
		go func(idx int, locator string) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = CitationCheck{URL: locator, Error: "context cancelled"}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = c.checkWithRetry(ctx, locator)
		}(i, cit.URL)
	}
	wg.Wait()

	return results
}

// checkSingle probes one locator with a HEAD request
func (c *Checker) checkSingle(ctx context.Context, locator string) CitationCheck {
	result := CitationCheck{URL: locator}

	parsed, err := url.Parse(locator)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		// Non-HTTP locators (about:blank, DOIs, book references) cannot
		// be probed and are not counted against the verdict
		result.Synthetic = true
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", "Veridex/0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	result.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 400
	return result
}

// checkWithRetry retries transient failures with exponential backoff
func (c *Checker) checkWithRetry(ctx context.Context, locator string) CitationCheck {
	var result CitationCheck
	for attempt := 0; attempt < checkMaxRetries; attempt++ {
		result = c.checkSingle(ctx, locator)
		if !isRetryableCheck(result) {
			return result
		}
		if attempt < checkMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			checkSleepFunc(backoff)
		}
	}
	return result
}

// isRetryableCheck returns true for results that indicate transient failures
func isRetryableCheck(result CitationCheck) bool {
	if result.StatusCode >= 500 && result.StatusCode < 600 {
		return true
	}
	if result.StatusCode == 429 {
		return true
	}
	if result.Error != "" {
		return isRetryableNetworkError(result.Error)
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// CheckVerdict is a convenience wrapper for probing one verdict's citations
// with default settings
func CheckVerdict(ctx context.Context, v *model.EvidenceVerdict) []CitationCheck {
	checker := NewChecker(10*time.Second, 10, "", "", "")
	return checker.Check(ctx, v.Citations)
}
