package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"actorfs/errs"
)

// metaTier, metaLastAccess, ... are the custom metadata header names
// carried on every tiered object: x-tier, x-last-access, x-access-count,
// x-created-at, plus the optional x-content-hash / x-original-path /
// x-encoding.
const (
	metaTier         = "x-tier"
	metaLastAccess   = "x-last-access"
	metaAccessCount  = "x-access-count"
	metaCreatedAt    = "x-created-at"
	metaContentHash  = "x-content-hash"
	metaOriginalPath = "x-original-path"
	metaEncoding     = "x-encoding"
)

// s3Bucket is a BucketDriver backed by an S3-compatible object store: a
// bucket name plus a session, custom metadata carried as S3 object
// metadata headers.
type s3Bucket struct {
	client   *s3.S3
	bucket   string
	identity string
}

// NewS3Bucket builds a BucketDriver over an S3-compatible bucket using the
// default AWS SDK credential chain. identity should be unique per physical
// bucket+endpoint pair so the tier engine's aliasing visited-set can
// distinguish buckets correctly.
func NewS3Bucket(sess *session.Session, bucketName, identity string) BucketDriver {
	return &s3Bucket{client: s3.New(sess), bucket: bucketName, identity: identity}
}

func (s *s3Bucket) Identity() string { return s.identity }

func (s *s3Bucket) Put(ctx context.Context, key string, data []byte, meta ObjectMeta) (PutResult, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(meta.ContentType),
		Metadata:    metaToHeaders(meta),
	}
	out, err := s.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return PutResult{}, errs.Wrap(errs.EINVAL, key, err)
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return PutResult{ETag: etag, Size: int64(len(data))}, nil
}

func (s *s3Bucket) Get(ctx context.Context, key string, rng *ByteRange) (*GetResult, error) {
	input := &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}
	if rng != nil {
		end := "" // open-ended
		if rng.End != nil {
			end = strconv.FormatInt(*rng.End-1, 10)
		}
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%s", rng.Start, end))
	}

	out, err := s.client.GetObjectWithContext(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return &GetResult{Found: false}, nil
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return &GetResult{Found: true, Data: data, Meta: headersToMeta(out.Metadata)}, nil
}

func (s *s3Bucket) Head(ctx context.Context, key string) (*ObjectMeta, bool, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	meta := headersToMeta(out.Metadata)
	return &meta, true, nil
}

func (s *s3Bucket) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(k),
		})
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

func (s *s3Bucket) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Limit > 0 {
		input.MaxKeys = aws.Int64(int64(opts.Limit))
	}
	if opts.Cursor != "" {
		input.ContinuationToken = aws.String(opts.Cursor)
	}

	out, err := s.client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{Truncated: aws.BoolValue(out.IsTruncated)}
	for _, obj := range out.Contents {
		result.Keys = append(result.Keys, aws.StringValue(obj.Key))
	}
	if out.NextContinuationToken != nil {
		result.NextCursor = *out.NextContinuationToken
	}
	return result, nil
}

func metaToHeaders(m ObjectMeta) map[string]*string {
	h := map[string]*string{
		metaTier:        aws.String(m.Tier),
		metaLastAccess:  aws.String(strconv.FormatInt(m.LastAccess, 10)),
		metaAccessCount: aws.String(strconv.FormatInt(m.AccessCount, 10)),
		metaCreatedAt:   aws.String(strconv.FormatInt(m.CreatedAt, 10)),
	}
	if m.ContentHash != "" {
		h[metaContentHash] = aws.String(m.ContentHash)
	}
	if m.OriginalPath != "" {
		h[metaOriginalPath] = aws.String(m.OriginalPath)
	}
	if m.Encoding != "" {
		h[metaEncoding] = aws.String(m.Encoding)
	}
	return h
}

func headersToMeta(h map[string]*string) ObjectMeta {
	var m ObjectMeta
	if v := h[metaTier]; v != nil {
		m.Tier = *v
	}
	if v := h[metaLastAccess]; v != nil {
		m.LastAccess, _ = strconv.ParseInt(*v, 10, 64)
	}
	if v := h[metaAccessCount]; v != nil {
		m.AccessCount, _ = strconv.ParseInt(*v, 10, 64)
	}
	if v := h[metaCreatedAt]; v != nil {
		m.CreatedAt, _ = strconv.ParseInt(*v, 10, 64)
	}
	if v := h[metaContentHash]; v != nil {
		m.ContentHash = *v
	}
	if v := h[metaOriginalPath]; v != nil {
		m.OriginalPath = *v
	}
	if v := h[metaEncoding]; v != nil {
		m.Encoding = *v
	}
	return m
}

func isNotFound(err error) bool {
	type awsErr interface {
		Code() string
	}
	if ae, ok := err.(awsErr); ok {
		return ae.Code() == s3.ErrCodeNoSuchKey || ae.Code() == "NotFound"
	}
	return false
}
