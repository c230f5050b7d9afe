package util

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bsv-blockchain/gcsync/errors"
)

// DefaultHTTPTimeout applies when the context carries no deadline.
const DefaultHTTPTimeout = 5 * time.Second

// DoHTTPRequest performs a GET and returns the response body. Transport failures and
// unexpected status codes are returned as service errors, a 404 as not found and a
// context that runs out as a network timeout.
func DoHTTPRequest(ctx context.Context, url string) ([]byte, error) {
	bodyReaderCloser, cancelFn, err := doHTTPRequest(ctx, url)
	defer cancelFn()

	if err != nil {
		return nil, err
	}

	defer func() {
		_ = bodyReaderCloser.Close()
	}()

	b, err := io.ReadAll(bodyReaderCloser)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, errors.NewNetworkTimeoutError("http request [%s] timed out while reading body", url, err)
		}

		return nil, errors.NewServiceError("http request [%s] failed to read body", url, err)
	}

	return b, nil
}

func doHTTPRequest(ctx context.Context, url string) (io.ReadCloser, context.CancelFunc, error) {
	cancelFn := func() {}

	if _, ok := ctx.Deadline(); !ok {
		ctx, cancelFn = context.WithTimeout(ctx, DefaultHTTPTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, cancelFn, errors.NewServiceError("failed to create http request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, cancelFn, errors.NewNetworkTimeoutError("http request [%s] timed out", url, err)
		}

		return nil, cancelFn, errors.NewServiceError("failed to do http request [%s]", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()

		errFn := errors.NewServiceError
		if resp.StatusCode == http.StatusNotFound {
			errFn = errors.NewNotFoundError
		}

		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil || len(b) == 0 {
			return nil, cancelFn, errFn("http request [%s] returned status code [%d]", url, resp.StatusCode)
		}

		return nil, cancelFn, errFn("http request [%s] returned status code [%d] with body [%s]", url, resp.StatusCode, string(b))
	}

	if resp.Header.Get("content-type") == "text/html" {
		_ = resp.Body.Close()
		return nil, cancelFn, errors.NewServiceError("http request [%s] returned HTML - assume bad URL", url)
	}

	return resp.Body, cancelFn, nil
}

// timedOut also catches the default deadline, which is set on a derived context.
func timedOut(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded)
}
