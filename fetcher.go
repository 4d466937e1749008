package edgedash

import (
	"context"
	"net/url"

	"github.com/mowgli42/bookish-train/internal/remote"
)

// httpFetcher adapts a remote.Client to the Fetcher interface.
type httpFetcher struct {
	client *remote.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp := f.client.Fetch(ctx, path, query)
	if resp.Error != nil {
		return nil, &FetchError{Kind: TransportFailure, Message: resp.Error.Error(), Err: resp.Error}
	}
	if !resp.OK() {
		return nil, statusError(resp.StatusCode, resp.StatusText)
	}
	return resp.Body, nil
}
