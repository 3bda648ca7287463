package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "interviews/o/i/transcript.md", want: "interviews/o/i/transcript.md"},
		{name: "simple prefix", prefix: "prod", key: "interviews/a.md", want: "prod/interviews/a.md"},
		{name: "prefix trailing slash", prefix: "prod/", key: "interviews/a.md", want: "prod/interviews/a.md"},
		{name: "prefix and key slashes", prefix: "/prod/", key: "/interviews/a.md", want: "prod/interviews/a.md"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	put  *s3.PutObjectInput
	body string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestPutUsesPrefixAndEncryption(t *testing.T) {
	fake := &fakeS3{}
	store := &Store{client: fake, bucket: "artifacts", prefix: "prod", kmsKeyID: "kms-1"}

	n, err := store.Put(context.Background(), "interviews/o/i/analysis.md", "text/markdown", strings.NewReader("report"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 bytes counted, got %d", n)
	}
	if aws.ToString(fake.put.Key) != "prod/interviews/o/i/analysis.md" {
		t.Fatalf("unexpected key %q", aws.ToString(fake.put.Key))
	}
	if fake.put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms || aws.ToString(fake.put.SSEKMSKeyId) != "kms-1" {
		t.Fatalf("expected kms encryption")
	}

	rc, err := store.Open(context.Background(), "interviews/o/i/analysis.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "report" {
		t.Fatalf("unexpected body %q", data)
	}
}
