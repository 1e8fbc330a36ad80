package archive

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open builds a store from an archive URL:
//
//	s3://bucket/prefix?region=eu-west-1&endpoint=http://localhost:9000
//	gs://bucket/prefix
//	file:///var/lib/seasa/archive
//
// A bare path is treated as a file URL.
func Open(ctx context.Context, rawURL string) (ObjectStore, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("archive: no archive URL configured")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("archive: parse %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "", "file":
		dir := u.Path
		if u.Scheme == "" {
			dir = rawURL
		}
		return NewFSStore(dir)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("archive: s3 URL needs a bucket")
		}
		q := u.Query()
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   u.Host,
			Region:   q.Get("region"),
			Endpoint: q.Get("endpoint"),
			Prefix:   keyPrefix(u.Path),
		})
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("archive: gs URL needs a bucket")
		}
		return openGCS(ctx, u.Host, keyPrefix(u.Path))
	default:
		return nil, fmt.Errorf("archive: unsupported scheme %q", u.Scheme)
	}
}

func keyPrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
