package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), DriverPGX, "")
	require.Error(t, err)
}

func TestDialector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{name: "default", driver: ""},
		{name: "pgx", driver: DriverPGX},
		{name: "lib/pq", driver: DriverPQ},
		{name: "unknown", driver: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := dialector(tt.driver, "postgres://u:p@localhost:5432/db?sslmode=disable")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "postgres", d.Name())
		})
	}
}
