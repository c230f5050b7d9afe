package status

import (
	"context"
	"strings"
	"time"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/util"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client queries GET <baseURL>/status over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
}

type ClientOption func(*Client)

// WithTimeout bounds every status query. Without it util.DefaultHTTPTimeout applies
// unless the caller's context has a deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, o := range opts {
		o(c)
	}

	return c
}

func (c *Client) URL() string {
	return c.baseURL + "/status"
}

// GetStatus fails with a QueryError, also when the node is too slow to answer.
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	b, err := util.DoHTTPRequest(ctx, c.URL())
	if err != nil {
		return nil, errors.NewQueryError("[status] %s unreachable", c.URL(), err)
	}

	var resp StatusResponse
	if err = json.Unmarshal(b, &resp); err != nil {
		return nil, errors.NewQueryError("[status] %s returned a malformed response", c.URL(), err)
	}

	return &resp, nil
}
