// Package s3 stores acolite outputs in an S3-compatible bucket (AWS or
// MinIO) under the key prefix acolite_output/<collection>/<year>/.
package s3

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lterlife/acolite-ingester/common"
	"github.com/lterlife/acolite-ingester/service/log"
)

// Config of the result store
type Config struct {
	Endpoint  string // empty for AWS
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Store uploads and fetches acolite results
type Store struct {
	client     *awss3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
}

// NewStore creates a result store on the configured bucket
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("NewStore.LoadDefaultConfig: %w", err)
	}

	client := awss3.NewFromConfig(awscfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO does not serve virtual-hosted buckets
		}
	})

	return &Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
	}, nil
}

// ResultPrefix is the object-key prefix of the results of (collection, year)
func ResultPrefix(collection common.Collection, year int) string {
	return fmt.Sprintf("acolite_output/%s/%d", collection, year)
}

// isResultFile selects the Level-2W products of the collection's sensors
func isResultFile(collection common.Collection, name string) bool {
	if !strings.Contains(name, "L2W") {
		return false
	}
	for _, prefix := range collection.ProductPrefixes() {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// resultKey maps a local file below outputDir to its object key
func resultKey(collection common.Collection, year int, outputDir, file string) (string, error) {
	rel, err := filepath.Rel(outputDir, file)
	if err != nil {
		return "", fmt.Errorf("resultKey: %w", err)
	}
	return path.Join(ResultPrefix(collection, year), filepath.ToSlash(rel)), nil
}

// UploadResults walks the processed output tree and uploads every Level-2W
// product of the collection, preserving the per-scene sub-paths.
func (s *Store) UploadResults(ctx context.Context, outputDir string, collection common.Collection, year int) error {
	if collection != common.Sentinel && collection != common.Landsat {
		return common.ErrUnsupportedCollection{Collection: collection.String()}
	}

	return filepath.WalkDir(outputDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isResultFile(collection, d.Name()) {
			return nil
		}
		key, err := resultKey(collection, year, outputDir, file)
		if err != nil {
			return err
		}
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("UploadResults: %w", err)
		}
		defer f.Close()
		if _, err := s.uploader.Upload(ctx, &awss3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("UploadResults[%s]: %w", key, err)
		}
		log.Logger(ctx).Sugar().Infof("uploaded %s to s3://%s/%s", file, s.bucket, key)
		return nil
	})
}

// FetchResults downloads into localDir every stored result of (collection,
// year) whose object name contains the given tile identifier (e.g. "T31UFU").
func (s *Store) FetchResults(ctx context.Context, tile string, collection common.Collection, year int, localDir string) error {
	if collection != common.Sentinel && collection != common.Landsat {
		return common.ErrUnsupportedCollection{Collection: collection.String()}
	}

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(ResultPrefix(collection, year)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("FetchResults.NextPage: %w", err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			name := path.Base(key)
			if !strings.Contains(name, tile) {
				continue
			}
			if err := s.fetchObject(ctx, key, filepath.Join(localDir, name)); err != nil {
				return fmt.Errorf("FetchResults.%w", err)
			}
			log.Logger(ctx).Sugar().Infof("fetched %s into %s", name, localDir)
		}
	}
	return nil
}

func (s *Store) fetchObject(ctx context.Context, key, localFile string) error {
	f, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("fetchObject: %w", err)
	}
	defer f.Close()
	if _, err := s.downloader.Download(ctx, f, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("fetchObject[%s]: %w", key, err)
	}
	return nil
}
