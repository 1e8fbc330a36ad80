//go:build !gcp

package archive

import (
	"context"
	"fmt"
)

func openGCS(ctx context.Context, bucket, prefix string) (ObjectStore, error) {
	return nil, fmt.Errorf("archive: GCS storage is not enabled in this build (use -tags gcp)")
}
