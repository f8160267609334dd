// Package archive writes finished daily stat rows to S3 as JSON, one
// object per date, so history survives database resets.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// S3API is the subset of *s3.Client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores DailyStat rows under prefix/YYYY/MM/YYYY-MM-DD.json.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
	log    *logger.Logger
}

func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix, log: logger.With("component", "archive")}
}

// Key returns the object key for a stat date.
func (a *S3Archive) Key(statDate string) string {
	if len(statDate) == len(domain.BatchDateLayout) {
		return a.prefix + statDate[:4] + "/" + statDate[5:7] + "/" + statDate + ".json"
	}
	return a.prefix + statDate + ".json"
}

// Put uploads the row, replacing any earlier copy for the same date.
func (a *S3Archive) Put(ctx context.Context, st *domain.DailyStat) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal daily stat: %w", err)
	}
	key := a.Key(st.StatDate)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"stat_date":   st.StatDate,
			"archived_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	a.log.Info("daily stats archived", "bucket", a.bucket, "key", key, "bytes", len(data))
	return nil
}
