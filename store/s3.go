package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/iterseq"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtmetrics"
)

// listMax is the largest page size S3's ListObjectsV2 accepts in one call.
const listMax = 1000

// S3Config configures an S3Backend. It covers the parameters spfs actually
// needs out of the much larger DriverParameters surface the registry's s3
// driver exposes -- region/credentials resolution is left to the SDK's
// default provider chain.
type S3Config struct {
	Bucket         string
	Region         string
	RegionEndpoint string
	ForcePathStyle bool
	RootDirectory  string
}

// S3Backend stores objects and payloads as S3 keys under two prefixes,
// keyed by digest text the same way FSBackend shards by digest text on
// disk. Grounded on registry/storage/driver/s3-aws's use of the classic
// aws-sdk-go v1 client (session.NewSession + s3.New), narrowed to the
// digest-keyed object/payload shape instead of an arbitrary path tree.
type S3Backend struct {
	bucket string
	root   string
	client *s3.S3
}

// NewS3Backend builds an S3Backend from cfg, resolving credentials via the
// SDK's default chain (environment, shared config, EC2/ECS role).
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.ForcePathStyle)
	if cfg.RegionEndpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.RegionEndpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return &S3Backend{
		bucket: cfg.Bucket,
		root:   strings.Trim(cfg.RootDirectory, "/"),
		client: s3.New(sess),
	}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) objectKey(d digest.Digest) string {
	return b.key("objects", d)
}

func (b *S3Backend) payloadKey(d digest.Digest) string {
	return b.key("payloads", d)
}

func (b *S3Backend) key(kind string, d digest.Digest) string {
	s := d.String()
	parts := []string{kind}
	if b.root != "" {
		parts = []string{b.root, kind}
	}
	if len(s) > shardWidth {
		parts = append(parts, s[:shardWidth], s[shardWidth:])
	} else {
		parts = append(parts, s)
	}
	return strings.Join(parts, "/")
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

func (b *S3Backend) HasObject(ctx context.Context, d digest.Digest) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) ReadObject(ctx context.Context, d digest.Digest) (graph.Object, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, rterrors.UnknownObject{Digest: d}
		}
		return nil, err
	}
	defer out.Body.Close()
	return graph.Decode(out.Body)
}

func (b *S3Backend) WriteObject(ctx context.Context, obj graph.Object) error {
	d := graph.Digest(obj)
	if ok, err := b.HasObject(ctx, d); err != nil {
		return err
	} else if ok {
		return nil
	}
	var buf bytes.Buffer
	if err := graph.Encode(&buf, obj); err != nil {
		return err
	}
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(d)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	return err
}

func (b *S3Backend) HasPayload(ctx context.Context, d digest.Digest) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.payloadKey(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) ReadPayload(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.payloadKey(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, rterrors.ObjectMissingPayload{Owner: d, Payload: d}
		}
		return nil, err
	}
	return out.Body, nil
}

// WritePayload buffers r in memory to compute its digest before the S3 key
// is known, then issues a single PutObject. Large payloads would want a
// multipart upload (as the teacher's s3-aws driver does for its Writer);
// spfs payloads are individual file blobs, typically well under that
// threshold, so the simpler single-shot path is used here.
func (b *S3Backend) WritePayload(ctx context.Context, r io.Reader) (digest.Digest, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return digest.Nil, 0, err
	}
	d := digest.FromBytes(data)
	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.payloadKey(d)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return digest.Nil, 0, err
	}
	rtmetrics.PayloadsWritten.WithValues(b.Name()).Inc()
	return d, int64(len(data)), nil
}

func (b *S3Backend) IterObjects(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return b.listDigests(ctx, "objects")
}

func (b *S3Backend) IterPayloadDigests(ctx context.Context) iterseq.Iterator[digest.Digest] {
	return b.listDigests(ctx, "payloads")
}

func (b *S3Backend) listDigests(ctx context.Context, kind string) iterseq.Iterator[digest.Digest] {
	prefix := kind + "/"
	if b.root != "" {
		prefix = b.root + "/" + prefix
	}
	var digests []digest.Digest
	var listErr error
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(listMax),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
			text := strings.ReplaceAll(key, "/", "")
			d, err := digest.Parse(text)
			if err != nil {
				continue
			}
			digests = append(digests, d)
		}
		return true
	})
	if err != nil {
		listErr = err
	}
	if listErr != nil {
		return iterseq.Func[digest.Digest](func(context.Context) (digest.Digest, bool, error) {
			return digest.Nil, false, listErr
		})
	}
	return iterseq.Slice(digests)
}
