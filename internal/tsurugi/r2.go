package tsurugi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// R2Client wraps the S3 client for the Cloudflare R2 release store.
type R2Client struct {
	Client     *s3.Client
	BucketName string
	accountID  string
}

// NewR2Client initializes a new R2 client using configuration values.
func NewR2Client(cfg *Config) (*R2Client, error) {
	accountID := cfg.Values["R2_ACCOUNT_ID"]
	accessKey := cfg.Values["R2_ACCESS_KEY_ID"]
	secretKey := cfg.Values["R2_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["R2_BUCKET_NAME"]

	if accountID == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("R2 credentials missing in configuration (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME)")
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	options := []func(*config.LoadOptions) error{
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	}

	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &R2Client{
		Client:     client,
		BucketName: bucketName,
		accountID:  accountID,
	}, nil
}

// releaseKey returns the object key of an asset within a release.
func releaseKey(tag, name string) string {
	return "releases/" + tag + "/" + name
}

// AssetURL returns the full store URL an asset would be uploaded to.
// Used for dry-run reporting; no request is made.
func AssetURL(cfg *Config, tag, name string) string {
	account := cfg.Values["R2_ACCOUNT_ID"]
	bucket := cfg.Values["R2_BUCKET_NAME"]
	if account == "" {
		account = "<account>"
	}
	if bucket == "" {
		bucket = "<bucket>"
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s/%s", account, bucket, releaseKey(tag, name))
}

// FetchManifest downloads an existing release manifest. A missing manifest
// is how a new release announces itself, so the caller treats any fetch
// error as "release does not exist yet".
func (r *R2Client) FetchManifest(ctx context.Context, tag string) (*ReleaseManifest, error) {
	data, err := r.downloadObject(ctx, releaseKey(tag, ManifestName))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

func (r *R2Client) downloadObject(ctx context.Context, key string) ([]byte, error) {
	output, err := r.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()

	return io.ReadAll(output.Body)
}

// UploadManifest uploads the release manifest, overwriting any previous one.
func (r *R2Client) UploadManifest(ctx context.Context, tag string, m *ReleaseManifest) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.BucketName),
		Key:           aws.String(releaseKey(tag, ManifestName)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	return err
}

// UploadAsset uploads one archive part from disk into the release,
// overwriting any asset of the same name (last write wins). Shows a
// progress bar when stdout is a terminal.
func (r *R2Client) UploadAsset(ctx context.Context, tag, name, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(name, ".zip") {
		contentType = "application/zip"
	}

	var body io.Reader = file
	if term.IsTerminal(int(os.Stdout.Fd())) {
		bar := progressbar.DefaultBytes(stat.Size(), name)
		body = io.TeeReader(file, bar)
		defer bar.Finish()
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.BucketName),
		Key:           aws.String(releaseKey(tag, name)),
		Body:          body,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// R2Object represents metadata for an object in R2.
type R2Object struct {
	Key  string
	Size int64
}

// ListObjects returns a list of objects in the bucket with given prefix.
func (r *R2Client) ListObjects(ctx context.Context, prefix string) ([]R2Object, error) {
	var objects []R2Object
	paginator := s3.NewListObjectsV2Paginator(r.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.BucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, R2Object{
				Key:  *obj.Key,
				Size: *obj.Size,
			})
		}
	}
	return objects, nil
}
