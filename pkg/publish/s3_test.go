package publish

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestPublish(t *testing.T) {
	client := &fakeS3{}
	p := NewWithClient(client, "storefront-static", "/sitemaps/sitemap-offers.xml")
	body := []byte("<urlset/>\n")

	require.NoError(t, p.Publish(context.Background(), body))
	assert.Equal(t, "s3://storefront-static/sitemaps/sitemap-offers.xml", p.Destination())
	assert.Equal(t, "storefront-static", aws.ToString(client.input.Bucket))
	assert.Equal(t, "sitemaps/sitemap-offers.xml", aws.ToString(client.input.Key))
	assert.Equal(t, ContentType, aws.ToString(client.input.ContentType))
	assert.Equal(t, CacheControl, aws.ToString(client.input.CacheControl))
	assert.Equal(t, int64(len(body)), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, body, client.body)
}

func TestPublish_Error(t *testing.T) {
	denied := errors.New("AccessDenied")
	p := NewWithClient(&fakeS3{err: denied}, "b", "k.xml")

	err := p.Publish(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), "s3://b/k.xml")
}

func TestDefaultKey(t *testing.T) {
	tests := map[string]string{
		"public/sitemap-offers.xml":   "sitemap-offers.xml",
		"sitemap.xml":                 "sitemap.xml",
		`C:\www\public\offers.xml`:    "offers.xml",
		"/srv/static/nested/site.xml": "site.xml",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultKey(in), in)
	}
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), Options{})
	assert.Error(t, err)
}
