package media

import "errors"

var (
	// ErrAssetTooLarge indicates the payload exceeds the configured max size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrNotImage indicates the fetched payload is not an image.
	ErrNotImage = errors.New("media asset is not an image")
	// ErrFetchStatus indicates the remote answered with a non-2xx status.
	ErrFetchStatus = errors.New("media fetch failed")
)
