// Package local implements the storage ports over a local filesystem
// directory. It backs development setups without remote storage and serves
// as the test double for the S3 client.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/duckbills/platypus/pkg/storage"
)

// Client stores content blobs and version objects under a base directory.
// Blobs land at baseDir/service/resource/fileName; version objects at
// baseDir/<key>.
type Client struct {
	baseDir string
}

// NewClient creates a local storage client rooted at baseDir, creating the
// directory if it does not exist.
func NewClient(baseDir string) (*Client, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local storage: base directory not set")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory %s: %w", baseDir, err)
	}
	return &Client{baseDir: baseDir}, nil
}

// Put copies the file at localSourcePath to the blob address.
func (c *Client) Put(ctx context.Context, service, resource, fileName, localSourcePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destDir := filepath.Join(c.baseDir, service, resource)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &storage.TransferError{Op: "put", Service: service, Resource: resource, FileName: fileName, Err: err}
	}
	if err := copyFile(localSourcePath, filepath.Join(destDir, fileName)); err != nil {
		return &storage.TransferError{Op: "put", Service: service, Resource: resource, FileName: fileName, Err: err}
	}
	return nil
}

// Get copies the named blob into destDir. Returns false when destDir
// already holds a file of that name.
func (c *Client) Get(ctx context.Context, service, resource, fileName, destDir string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dest := filepath.Join(destDir, fileName)
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return false, &storage.TransferError{Op: "get", Service: service, Resource: resource, FileName: fileName, Err: err}
	}
	source := filepath.Join(c.baseDir, service, resource, fileName)
	if err := copyFile(source, dest); err != nil {
		return false, &storage.TransferError{Op: "get", Service: service, Resource: resource, FileName: fileName, Err: err}
	}
	return true, nil
}

// GetString reads the version object at key.
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(c.keyPath(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read version object %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// PutString writes the version object at key.
func (c *Client) PutString(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := c.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create version object directory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write version object %s: %w", key, err)
	}
	return nil
}

func (c *Client) keyPath(key string) string {
	return filepath.Join(c.baseDir, filepath.FromSlash(key))
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
