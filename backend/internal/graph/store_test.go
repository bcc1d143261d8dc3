package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableStore(t *testing.T) *Store {
	t.Helper()
	driver, err := neo4j.NewDriverWithContext("neo4j://127.0.0.1:1", neo4j.NoAuth())
	require.NoError(t, err)
	return NewStore(driver, "")
}

func TestStore_DegradesWhenUnreachable(t *testing.T) {
	store := unreachableStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, ok := store.Read(ctx, "RETURN 1 AS one", nil)
	assert.False(t, ok)
	assert.Empty(t, rows)

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.False(t, store.Write(ctx, "CREATE (n:TrailsUnit)", nil))

	// The store stays usable after a failure.
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok = store.Read(ctx, "RETURN 1 AS one", nil)
	assert.False(t, ok)

	assert.NoError(t, store.Close(context.Background()))
}

func TestStore_RepositoryOverUnreachableStore(t *testing.T) {
	store := unreachableStore(t)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	repo := NewRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	node, ok := repo.FindNodeByID(ctx, ExternalID("a"))
	assert.False(t, ok)
	assert.Nil(t, node)
}

func TestUnavailable(t *testing.T) {
	conn := &neo4j.ConnectivityError{Inner: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connectivity", conn, true},
		{"wrapped connectivity", fmt.Errorf("run: %w", conn), true},
		{"retry limit over connectivity", &neo4j.TransactionExecutionLimit{Cause: "timeout", Errors: []error{errors.New("first"), conn}}, true},
		{"retry limit over other errors", &neo4j.TransactionExecutionLimit{Cause: "timeout", Errors: []error{errors.New("syntax")}}, false},
		{"query error", &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unavailable(tt.err))
		})
	}
}
