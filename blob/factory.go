package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects a Store implementation using environment variables.
//
//	FULFLOW_BLOB_DRIVER: fs|s3|memory (default fs)
//	FULFLOW_BLOB_FS_ROOT: directory root when driver=fs (default ./attachments)
//	FULFLOW_BLOB_S3_BUCKET: bucket name (required for s3)
//	FULFLOW_BLOB_S3_REGION: region (default us-east-1)
//	FULFLOW_BLOB_S3_ENDPOINT: custom endpoint, e.g. MinIO (optional)
//	FULFLOW_BLOB_S3_PATH_STYLE: true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FULFLOW_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("FULFLOW_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("FULFLOW_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("FULFLOW_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv("FULFLOW_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("FULFLOW_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("FULFLOW_BLOB_S3_PATH_STYLE"), "true"),
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
