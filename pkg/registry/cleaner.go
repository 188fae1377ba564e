package registry

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Cleaner removes published images from the registry
type Cleaner struct {
	keychain authn.Keychain
}

// NewCleaner creates a cleaner resolving credentials from the docker config
func NewCleaner() *Cleaner {
	return &Cleaner{keychain: authn.DefaultKeychain}
}

// DeleteImage deletes repository:tag from the registry
func (c *Cleaner) DeleteImage(ctx context.Context, repository, tag string) error {
	ref, err := name.NewTag(repository+":"+tag, name.StrictValidation)
	if err != nil {
		return fmt.Errorf("invalid image reference: %w", err)
	}
	if err := remote.Delete(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(c.keychain)); err != nil {
		return fmt.Errorf("delete %s: %w", ref.String(), err)
	}
	return nil
}
