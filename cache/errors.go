package cache

import "errors"

var (
	// ErrNilClient is the panic value when a query function gets a nil *Client.
	ErrNilClient = errors.New("querycache: nil client")

	// ErrNilFetcher is the panic value when a query is registered without a fetcher.
	ErrNilFetcher = errors.New("querycache: nil fetcher")

	// ErrTypeMismatch is wrapped in the panic value when a typed store is
	// registered under an identifier owned by a different (K, V) pair.
	ErrTypeMismatch = errors.New("querycache: query cache type mismatch")

	// ErrClosed is returned by blocking calls once the Client or the
	// QueryResult has been closed.
	ErrClosed = errors.New("querycache: closed")
)
