// Package storage provides the pluggable byte-storage backend the workspace
// (internal/workspace) stages its tree on: local disk by default, or S3 /
// Azure Blob when a migration's staging directory needs to live off-box.
// Every path passed to Backend is relative to the workspace root, the same
// shape produced by internal/workspace's path builders (e.g.
// "current/journals/<uuid>/journal.json").
package storage

import (
	"context"
	"io"
)

// Backend is the set of operations the workspace tree actually drives:
// write a staged file, read one back, check whether one has already been
// staged (the resume checks of spec.md §4.5), and list a directory's
// entries (the PUSH handlers' sibling-file scans). There is no
// Delete, size, or presigned-URL surface — nothing in the transfer engine
// ever removes a staged file, inspects its size out of band, or hands a
// download link to anything outside the process.
type Backend interface {
	// Upload stages reader's content at path, sized size.
	Upload(ctx context.Context, path string, reader io.Reader, size int64) error

	// Download opens the staged content at path. Callers must Close it.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists reports whether path has already been staged.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns every staged path under prefix, for directory-style scans.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures one of the three backends below.
type Config struct {
	Backend    string
	Azure      AzureConfig
	S3         S3Config
	Filesystem FilesystemConfig
}

// AzureConfig configures the workspace's Azure Blob staging backend.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	EndpointURL   string
}

// S3Config configures the workspace's S3-compatible staging backend.
// AccessKeyID/SecretAccessKey are optional: when unset, the backend falls
// back to the AWS SDK's default credential chain (environment, shared
// config, or instance role), the same way the `aws` CLI itself resolves
// credentials for a migration box that already has them provisioned.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	UseSSL          bool
}

// FilesystemConfig configures the workspace's local-disk staging backend.
type FilesystemConfig struct {
	BasePath string
}
