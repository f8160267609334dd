package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

type fakeS3 struct {
	puts map[string][]byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_Put(t *testing.T) {
	fake := &fakeS3{}
	a := NewS3Archive(fake, "outreach-stats", "daily-stats")

	st := &domain.DailyStat{StatDate: "2025-03-03", EmailsSent: 12, Opens: 4}
	require.NoError(t, a.Put(context.Background(), st))

	body, ok := fake.puts["outreach-stats/daily-stats/2025/03/2025-03-03.json"]
	require.True(t, ok)
	var got domain.DailyStat
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 12, got.EmailsSent)
	assert.Equal(t, 4, got.Opens)
}

func TestS3Archive_PutError(t *testing.T) {
	a := NewS3Archive(&fakeS3{err: errors.New("access denied")}, "b", "")
	err := a.Put(context.Background(), &domain.DailyStat{StatDate: "2025-03-03"})
	assert.ErrorContains(t, err, "s3://b/2025/03/2025-03-03.json")
}
