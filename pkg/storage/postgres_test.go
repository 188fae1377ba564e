package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/modelhost/pkg/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfig_Validate(t *testing.T) {
	valid := PostgresConfig{URL: "postgres://localhost/modelhost", PingTimeout: time.Second, MaxOpenConns: 4}
	assert.NoError(t, valid.Validate())

	noURL := valid
	noURL.URL = ""
	assert.Error(t, noURL.Validate())

	noTimeout := valid
	noTimeout.PingTimeout = 0
	assert.Error(t, noTimeout.Validate())

	noConns := valid
	noConns.MaxOpenConns = 0
	assert.Error(t, noConns.Validate())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		}
	}
	return nil
}

func TestScanDeployment(t *testing.T) {
	now := time.Now().UTC()
	row := fakeRow{values: []any{
		"dep-1", "MyModel", "user-1", "InService",
		"models", "model.tar.gz", "model.tar.gz-1", "repo",
		"MyModel-dep1", "MyModel-dep1-endpoint", "", now, now,
	}}

	d, err := scanDeployment(row)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInService, d.Status)
	assert.Equal(t, "MyModel-dep1", d.HostingModelName)
	assert.Equal(t, "MyModel-dep1-endpoint", d.EndpointName)
	assert.Equal(t, now, d.CreatedAt)

	_, err = scanDeployment(fakeRow{err: errors.New("scan failed")})
	assert.Error(t, err)
}
