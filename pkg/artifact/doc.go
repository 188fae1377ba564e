// Package artifact uploads model archives to the S3-compatible object store.
package artifact
