package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/modelhost/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketDeployments = []byte("deployments")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "modelhost.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDeployments); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketDeployments, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database can serve a read transaction
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketDeployments) == nil {
			return errors.New("deployments bucket missing")
		}
		return nil
	})
}

func (s *BoltStore) CreateDeployment(ctx context.Context, d *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		if b.Get([]byte(d.ID)) != nil {
			return fmt.Errorf("deployment %s: %w", d.ID, types.ErrAlreadyExists)
		}
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return b.Put([]byte(d.ID), data)
	})
}

func (s *BoltStore) GetDeployment(ctx context.Context, id string) (*types.Deployment, error) {
	var d types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDeployments).Get([]byte(id))
		if data == nil {
			return types.NotFoundf("deployment %s", id)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) ListDeployments(ctx context.Context) ([]*types.Deployment, error) {
	return s.list(func(*types.Deployment) bool { return true })
}

func (s *BoltStore) ListDeploymentsByUser(ctx context.Context, userID string) ([]*types.Deployment, error) {
	return s.list(func(d *types.Deployment) bool { return d.UserID == userID })
}

func (s *BoltStore) list(keep func(*types.Deployment) bool) ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var d types.Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if keep(&d) {
				deployments = append(deployments, &d)
			}
			return nil
		})
	})
	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].CreatedAt.Before(deployments[j].CreatedAt)
	})
	return deployments, err
}

// UpdateDeploymentFields reads, validates and writes the record in a single
// read-write transaction. BoltDB allows one writer at a time, which
// serializes concurrent updates to the same record.
func (s *BoltStore) UpdateDeploymentFields(ctx context.Context, id string, update types.DeploymentUpdate) (*types.Deployment, error) {
	var updated types.Deployment
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(id))
		if data == nil {
			return types.NotFoundf("deployment %s", id)
		}
		if err := json.Unmarshal(data, &updated); err != nil {
			return err
		}
		if err := update.Validate(&updated); err != nil {
			return err
		}
		update.Apply(&updated)

		out, err := json.Marshal(&updated)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *BoltStore) DeleteDeployment(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		if b.Get([]byte(id)) == nil {
			return types.NotFoundf("deployment %s", id)
		}
		return b.Delete([]byte(id))
	})
}
