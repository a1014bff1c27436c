package telnyx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// defaultPageSize applies when the filter does not specify one.
	defaultPageSize = 50

	// maxPages guards against runaway pagination.
	maxPages = 40

	// rateLimitBackoff is how long to wait before retrying a page after a 429.
	rateLimitBackoff = time.Second
)

// ListRecordings fetches all recordings matching the filter, walking every
// page the provider reports. A 429 waits rateLimitBackoff and retries the
// same page; any other non-2xx is a hard failure.
func (c *Client) ListRecordings(ctx context.Context, filter RecordingFilter) ([]Recording, error) {
	params := url.Values{}
	if filter.CallLegID != "" {
		params.Set("filter[call_leg_id]", filter.CallLegID)
	}
	if filter.CallSessionID != "" {
		params.Set("filter[call_session_id]", filter.CallSessionID)
	}
	if filter.From != "" {
		params.Set("filter[from]", filter.From)
	}
	if filter.To != "" {
		params.Set("filter[to]", filter.To)
	}
	if !filter.CreatedAfter.IsZero() {
		params.Set("filter[created_at][gte]", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if !filter.CreatedBefore.IsZero() {
		params.Set("filter[created_at][lte]", filter.CreatedBefore.UTC().Format(time.RFC3339))
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var recordings []Recording
	err := c.fetchAllPages(ctx, "/recordings", params, pageSize, filter.MaxPages, func(data json.RawMessage) error {
		var page []Recording
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("decoding recordings page: %w", err)
		}
		recordings = append(recordings, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return recordings, nil
}

// ListCallEvents fetches the event stream for one call session. Filtering by
// session id rather than phone numbers avoids the provider's 24-hour lookback
// limit on number-filtered queries.
func (c *Client) ListCallEvents(ctx context.Context, sessionID string) ([]CallEvent, error) {
	params := url.Values{}
	params.Set("filter[application_session_id]", sessionID)

	var events []CallEvent
	err := c.fetchAllPages(ctx, "/call_events", params, defaultPageSize, 0, func(data json.RawMessage) error {
		var page []CallEvent
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("decoding call events page: %w", err)
		}
		events = append(events, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing call events: %w", err)
	}
	return events, nil
}

// ListPhoneNumbers looks up provisioned phone numbers by exact E.164 match.
// Used by the dialer's from-number assignment diagnostic.
func (c *Client) ListPhoneNumbers(ctx context.Context, number string) ([]PhoneNumber, error) {
	params := url.Values{}
	params.Set("filter[phone_number]", number)

	var numbers []PhoneNumber
	err := c.fetchAllPages(ctx, "/phone_numbers", params, defaultPageSize, 0, func(data json.RawMessage) error {
		var page []PhoneNumber
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("decoding phone numbers page: %w", err)
		}
		numbers = append(numbers, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing phone numbers: %w", err)
	}
	return numbers, nil
}

// fetchAllPages walks a paginated list endpoint, invoking collect with each
// page's data array. Pages advance while the provider's meta reports more
// remain, up to pageCap (or the maxPages ceiling when pageCap is zero).
func (c *Client) fetchAllPages(ctx context.Context, path string, params url.Values, pageSize, pageCap int, collect func(json.RawMessage) error) error {
	if pageCap <= 0 || pageCap > maxPages {
		pageCap = maxPages
	}
	params.Set("page[size]", strconv.Itoa(pageSize))

	page := 1
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}

		params.Set("page[number]", strconv.Itoa(page))
		data, totalPages, err := c.getPage(ctx, path, params)
		if err != nil {
			if IsStatus(err, http.StatusTooManyRequests) {
				// Provider rate limit: wait and retry the same page.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(rateLimitBackoff):
				}
				continue
			}
			return err
		}

		if err := collect(data); err != nil {
			return err
		}

		if page >= totalPages || page >= pageCap {
			return nil
		}
		page++
	}
}

// getPage fetches a single page of a list endpoint, returning the data array
// and the provider's reported total page count.
func (c *Client) getPage(ctx context.Context, path string, params url.Values) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	var env listEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, 0, fmt.Errorf("decoding list response: %w", err)
	}

	totalPages := env.Meta.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}
	return env.Data, totalPages, nil
}
