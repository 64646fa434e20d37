// Package influx is the HTTP client for the source query interface and the
// target write interface. It speaks the 1.x-style /query and /write API:
// JSON results (optionally streamed in server-side chunks) and line-protocol
// writes.
package influx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/logging"
)

// Default transport parameters.
const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultWriteRetries is how many times a failed write is retried
	// before the measurement is abandoned.
	DefaultWriteRetries = 10

	// DefaultRetryDelay is the pause between write retries.
	DefaultRetryDelay = time.Second
)

// Config configures a Client. The client is explicitly constructed and passed
// into each component; there is no shared global session.
type Config struct {
	// URL is the base URL including scheme and port, e.g. "https://influx:8086".
	URL string

	// Username/Password for basic auth. Empty username disables auth.
	Username string
	Password string

	// Timeout for non-streaming requests. Zero means DefaultTimeout.
	Timeout time.Duration

	// WriteRetries is the retry budget for transient write failures.
	// Zero means DefaultWriteRetries; negative disables retries.
	WriteRetries int

	// RetryDelay is the pause between write retries. Zero means
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// HTTPClient overrides the underlying client (tests). When set,
	// Timeout is ignored.
	HTTPClient *http.Client
}

// Client talks to one InfluxDB endpoint.
type Client struct {
	baseURL      string
	username     string
	password     string
	httpc        *http.Client
	writeRetries int
	retryDelay   time.Duration
	log          *slog.Logger
}

// New creates a client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.NewMissingField("url")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, errors.NewValidation("url", err.Error())
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpc = &http.Client{Timeout: timeout}
	}

	retries := cfg.WriteRetries
	if retries == 0 {
		retries = DefaultWriteRetries
	} else if retries < 0 {
		retries = 0
	}

	delay := cfg.RetryDelay
	if delay == 0 {
		delay = DefaultRetryDelay
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		httpc:        httpc,
		writeRetries: retries,
		retryDelay:   delay,
		log:          logging.Component("influx"),
	}, nil
}

// Result is one statement result within a query response.
type Result struct {
	Series []Series `json:"series"`
	Err    string   `json:"error"`
}

// Series is one series of rows within a result.
type Series struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Values  [][]interface{} `json:"values"`
	Partial bool            `json:"partial"`
}

// response is the JSON envelope of /query.
type response struct {
	Results []Result `json:"results"`
	Err     string   `json:"error"`
}

// newRequest builds an authenticated request.
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// Ping checks connectivity to the endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/ping", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrConnectionFailed, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Wrapf(errors.ErrConnectionFailed, "ping returned status %d", resp.StatusCode)
	}
	return nil
}

// Query runs one or more statements (semicolon-separated) and returns the
// fully decoded results. Use ChunkedQuery for unbounded result sets.
func (c *Client) Query(ctx context.Context, db, q string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", q)
	if db != "" {
		params.Set("db", db)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/query", params, nil)
	if err != nil {
		return nil, err
	}

	c.log.Debug("query", "db", db, "q", q)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConnectionFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.Wrapf(errors.ErrAuthFailed, "status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(errors.ErrQueryFailed, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	// Numbers stay json.Number so nanosecond timestamps survive decoding.
	dec.UseNumber()
	var r response
	if err := dec.Decode(&r); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedResult, err.Error())
	}
	if r.Err != "" {
		return nil, errors.Wrap(errors.ErrQueryFailed, r.Err)
	}
	return r.Results, nil
}

// Write posts a batch of line-protocol records (without trailing newlines)
// for the given database and optional retention policy. Expects 204.
//
// Client-side rejections (4xx) fail immediately with ErrWriteRejected;
// transient failures (network errors, 5xx) are retried up to the configured
// budget with a fixed delay, then fail with ErrConnectionFailed.
func (c *Client) Write(ctx context.Context, db, rp string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	params := url.Values{}
	params.Set("db", db)
	if rp != "" {
		params.Set("rp", rp)
	}
	body := strings.Join(lines, "\n")

	var lastErr error
	for attempt := 0; attempt <= c.writeRetries; attempt++ {
		if attempt > 0 {
			c.log.Warn("retrying write", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := c.newRequest(ctx, http.MethodPost, "/write", params, strings.NewReader(body))
		if err != nil {
			return err
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = errors.Wrap(errors.ErrConnectionFailed, err.Error())
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNoContent:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// The target rejected the batch; retrying identical data
			// cannot succeed.
			return &errors.RejectionError{
				Status: resp.StatusCode,
				Body:   strings.TrimSpace(string(respBody)),
			}
		default:
			lastErr = errors.Wrapf(errors.ErrConnectionFailed, "status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
	}

	return lastErr
}

// quoteIdent quotes an identifier for use in a statement.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}

// ShowMeasurements lists the measurements of a database.
func (c *Client) ShowMeasurements(ctx context.Context, db string) ([]string, error) {
	results, err := c.Query(ctx, db, "SHOW MEASUREMENTS")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0].Err != "" {
		return nil, errors.Wrap(errors.ErrQueryFailed, "SHOW MEASUREMENTS returned no result")
	}

	var names []string
	for _, s := range results[0].Series {
		for _, row := range s.Values {
			if len(row) == 0 {
				continue
			}
			if name, ok := row[0].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// ShowFieldKeys returns, per measurement, the field name to field type
// mapping ("float", "integer", "boolean", "string"). All measurements are
// queried in one batched multi-statement request, mirroring the statement
// order. Measurements without fields (empty measurements) are absent from
// the result.
func (c *Client) ShowFieldKeys(ctx context.Context, db string, measurements []string) (map[string]map[string]string, error) {
	if len(measurements) == 0 {
		return map[string]map[string]string{}, nil
	}

	stmts := make([]string, len(measurements))
	for i, m := range measurements {
		stmts[i] = "SHOW FIELD KEYS FROM " + quoteIdent(m)
	}

	results, err := c.Query(ctx, db, strings.Join(stmts, ";"))
	if err != nil {
		return nil, err
	}

	fields := make(map[string]map[string]string)
	for _, res := range results {
		if res.Err != "" {
			return nil, errors.Wrap(errors.ErrQueryFailed, res.Err)
		}
		for _, s := range res.Series {
			m := make(map[string]string)
			for _, row := range s.Values {
				if len(row) < 2 {
					continue
				}
				key, kok := row[0].(string)
				typ, tok := row[1].(string)
				if kok && tok {
					m[key] = typ
				}
			}
			if len(m) > 0 {
				fields[s.Name] = m
			}
		}
	}
	return fields, nil
}

// SelectAll renders the extraction statement for one measurement, optionally
// qualified by a retention policy and constrained by a time condition.
func SelectAll(retentionPolicy, measurement, condition string) string {
	q := "SELECT * FROM "
	if retentionPolicy != "" {
		q += quoteIdent(retentionPolicy) + "."
	}
	q += quoteIdent(measurement)
	if condition != "" {
		q += " WHERE " + condition
	}
	return q
}

// formatChunkSize is a helper shared with the chunked stream.
func formatChunkSize(n int) string {
	return strconv.Itoa(n)
}
