package influx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// DefaultReadChunkSize is the server-side chunk size hint for extraction
// queries. It bounds how many rows are in flight at once regardless of
// measurement size.
const DefaultReadChunkSize = 10000

// ChunkStream is a pull-based stream of chunked query results. Each call to
// Next decodes exactly one server-side chunk from the response body, so at
// most one chunk is buffered in memory at a time.
//
// The stream must be closed when done.
type ChunkStream struct {
	body   io.ReadCloser
	dec    *json.Decoder
	chunks int
	closed bool
}

// ChunkedQuery runs q with server-side chunking enabled and nanosecond
// epoch timestamps, returning a stream of result chunks.
func (c *Client) ChunkedQuery(ctx context.Context, db, q string, chunkSize int) (*ChunkStream, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultReadChunkSize
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("db", db)
	params.Set("epoch", "ns")
	params.Set("chunked", "true")
	params.Set("chunk_size", formatChunkSize(chunkSize))

	req, err := c.newRequest(ctx, http.MethodGet, "/query", params, nil)
	if err != nil {
		return nil, err
	}

	c.log.Debug("chunked query", "db", db, "q", q, "chunk_size", chunkSize)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConnectionFailed, err.Error())
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, errors.Wrapf(errors.ErrAuthFailed, "status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errors.Wrapf(errors.ErrQueryFailed, "status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	// Numbers stay json.Number so nanosecond timestamps survive decoding.
	dec.UseNumber()

	return &ChunkStream{
		body: resp.Body,
		dec:  dec,
	}, nil
}

// Next returns the next chunk of results. It returns io.EOF after the last
// chunk. A transport failure mid-stream is reported as ErrStreamTruncated:
// the data received so far is incomplete and the caller should re-run the
// measurement with a narrower time range.
func (s *ChunkStream) Next() ([]Result, error) {
	if s.closed {
		return nil, io.EOF
	}

	var r response
	if err := s.dec.Decode(&r); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// Anything but a clean end of stream means the connection dropped
		// mid-chunk.
		return nil, errors.Wrapf(errors.ErrStreamTruncated,
			"after %d chunks: %v", s.chunks, err)
	}
	if r.Err != "" {
		return nil, errors.Wrap(errors.ErrQueryFailed, r.Err)
	}
	for _, res := range r.Results {
		if res.Err != "" {
			return nil, errors.Wrap(errors.ErrQueryFailed, res.Err)
		}
	}

	s.chunks++
	return r.Results, nil
}

// Chunks returns how many chunks have been decoded so far.
func (s *ChunkStream) Chunks() int {
	return s.chunks
}

// Close releases the underlying response body. Closing before the stream is
// drained aborts the in-flight query.
func (s *ChunkStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
