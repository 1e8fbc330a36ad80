//go:build gcp

package archive

import "context"

func openGCS(ctx context.Context, bucket, prefix string) (ObjectStore, error) {
	return NewGCSStore(ctx, bucket, prefix)
}
