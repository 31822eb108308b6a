// Package s3 implements the storage ports over S3-compatible object
// storage. Content blobs are keyed prefix/service/resource/fileName and
// version objects prefix/<key>.
package s3

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/duckbills/platypus/pkg/config"
	"github.com/duckbills/platypus/pkg/metrics"
	"github.com/duckbills/platypus/pkg/storage"
)

const transferTimeout = 5 * time.Minute

// Client implements storage.ContentStore and storage.ObjectStore against
// an S3 bucket.
type Client struct {
	s3Client *s3.Client
	cfg      *config.AppConfig
}

// NewClient creates a new S3 storage client from the global configuration.
func NewClient() (*Client, error) {
	if !config.CFG.S3.Enabled {
		return nil, fmt.Errorf("S3 storage is not enabled in configuration")
	}

	s3Client, err := getS3Client()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	return &Client{
		s3Client: s3Client,
		cfg:      &config.CFG,
	}, nil
}

// getS3Client initializes and returns an S3 client based on configuration
func getS3Client() (*s3.Client, error) {
	ctx := context.Background()

	httpClient := &http.Client{}

	if config.CFG.S3.UseSSL {
		tlsConfig := &tls.Config{}

		// Load custom CA if specified
		if config.CFG.S3.CustomCAPath != "" && !config.CFG.S3.SkipCertValidation {
			rootCAs, _ := x509.SystemCertPool()
			if rootCAs == nil {
				rootCAs = x509.NewCertPool()
			}

			caCert, err := os.ReadFile(config.CFG.S3.CustomCAPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read custom CA certificate: %w", err)
			}

			if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
				return nil, fmt.Errorf("failed to append custom CA certificate")
			}

			tlsConfig.RootCAs = rootCAs
			log.Printf("Using custom CA certificate from %s", config.CFG.S3.CustomCAPath)
		}

		if config.CFG.S3.SkipCertValidation {
			tlsConfig.InsecureSkipVerify = true
			log.Printf("Warning: TLS certificate validation is disabled for S3 connections")
		}

		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
	}

	sdkOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.CFG.S3.AccessKey, config.CFG.S3.SecretKey, "",
		)),
		awsconfig.WithHTTPClient(httpClient),
	}

	if config.CFG.S3.Endpoint == "" {
		// Standard AWS S3 - add region
		sdkOptions = append(sdkOptions, awsconfig.WithRegion(config.CFG.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, sdkOptions...)
	if err != nil {
		return nil, fmt.Errorf("AWS SDK config initialization error: %w", err)
	}

	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = config.CFG.S3.PathStyle
		},
	}

	if config.CFG.S3.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.CFG.S3.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Options...), nil
}

// Put uploads the file at localSourcePath to the blob address, retrying
// transient failures with exponential backoff.
func (c *Client) Put(ctx context.Context, service, resource, fileName, localSourcePath string) error {
	startTime := time.Now()
	objectKey := c.blobKey(service, resource, fileName)

	if c.cfg.Debug {
		log.Printf("S3 Debug: uploading %s to key %s", localSourcePath, objectKey)
	}

	op := func() error {
		file, err := os.Open(localSourcePath)
		if err != nil {
			// A missing source never heals; do not retry.
			return backoff.Permanent(err)
		}
		defer file.Close()

		putCtx, cancel := context.WithTimeout(ctx, transferTimeout)
		defer cancel()

		_, err = c.s3Client.PutObject(putCtx, &s3.PutObjectInput{
			Bucket: aws.String(c.cfg.S3.Bucket),
			Key:    aws.String(objectKey),
			Body:   file,
		})
		return err
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		metrics.FileTransferCount.WithLabelValues("put", "error").Inc()
		return &storage.TransferError{Op: "put", Service: service, Resource: resource, FileName: fileName, Err: err}
	}

	metrics.FileTransferDuration.WithLabelValues("put").Observe(time.Since(startTime).Seconds())
	metrics.FileTransferCount.WithLabelValues("put", "success").Inc()
	return nil
}

// Get downloads the named blob into destDir. Returns false when destDir
// already holds a file of that name.
func (c *Client) Get(ctx context.Context, service, resource, fileName, destDir string) (bool, error) {
	startTime := time.Now()
	objectKey := c.blobKey(service, resource, fileName)
	dest := filepath.Join(destDir, fileName)

	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return false, &storage.TransferError{Op: "get", Service: service, Resource: resource, FileName: fileName, Err: err}
	}

	op := func() error {
		getCtx, cancel := context.WithTimeout(ctx, transferTimeout)
		defer cancel()

		out, err := c.s3Client.GetObject(getCtx, &s3.GetObjectInput{
			Bucket: aws.String(c.cfg.S3.Bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer out.Body.Close()

		file, err := os.Create(dest)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(file, out.Body); err != nil {
			file.Close()
			os.Remove(dest)
			return err
		}
		return file.Close()
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		metrics.FileTransferCount.WithLabelValues("get", "error").Inc()
		return false, &storage.TransferError{Op: "get", Service: service, Resource: resource, FileName: fileName, Err: err}
	}

	metrics.FileTransferDuration.WithLabelValues("get").Observe(time.Since(startTime).Seconds())
	metrics.FileTransferCount.WithLabelValues("get", "success").Inc()
	return true, nil
}

// GetString fetches the version object stored at key.
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	getCtx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	out, err := c.s3Client.GetObject(getCtx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.S3.Bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read version object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read version object %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// PutString stores a version object at key.
func (c *Client) PutString(ctx context.Context, key, value string) error {
	putCtx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	_, err := c.s3Client.PutObject(putCtx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.S3.Bucket),
		Key:    aws.String(c.objectKey(key)),
		Body:   strings.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("failed to write version object %s: %w", key, err)
	}
	return nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(policy, ctx)
}

func (c *Client) blobKey(service, resource, fileName string) string {
	return c.objectKey(fmt.Sprintf("%s/%s/%s", service, resource, fileName))
}

func (c *Client) objectKey(key string) string {
	if c.cfg.S3.Prefix != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(c.cfg.S3.Prefix, "/"), key)
	}
	return key
}
