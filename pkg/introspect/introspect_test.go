// SPDX-License-Identifier: Apache-2.0

package introspect_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/internal/testutils"
	"github.com/schemaflow/schemaflow/pkg/db"
	"github.com/schemaflow/schemaflow/pkg/introspect"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestCapture_ReadsTablesColumnsAndForeignKeys(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()

		_, err := conn.ExecContext(ctx, `
			CREATE TABLE users (
				id uuid PRIMARY KEY,
				email text NOT NULL UNIQUE
			);
			CREATE TABLE orders (
				id uuid PRIMARY KEY,
				user_id uuid NOT NULL REFERENCES users(id),
				total numeric(10,2)
			);
			CREATE INDEX orders_user_id_idx ON orders(user_id);
		`)
		require.NoError(t, err)

		intro := introspect.New(&db.RDB{DB: conn})
		snap, err := intro.Capture(ctx, uuid.New())
		require.NoError(t, err)

		usersTable := snap.GetTable("public", "users")
		require.NotNil(t, usersTable)
		assert.Len(t, usersTable.Columns, 2)
		emailCol := usersTable.GetColumn("email")
		require.NotNil(t, emailCol)
		assert.False(t, emailCol.Nullable)
		assert.True(t, emailCol.IsUnique)

		ordersTable := snap.GetTable("public", "orders")
		require.NotNil(t, ordersTable)

		require.Len(t, snap.ForeignKeys, 1)
		fk := snap.ForeignKeys[0]
		assert.Equal(t, "orders", fk.SourceTable)
		assert.Equal(t, "users", fk.ReferencedTable)
		assert.Equal(t, []string{"user_id"}, fk.SourceColumns)

		idxs := snap.IndexesForTable("public", "orders")
		var found bool
		for _, idx := range idxs {
			if idx.Name == "orders_user_id_idx" {
				found = true
			}
		}
		assert.True(t, found)

		assert.NotEmpty(t, snap.Checksum)
	})
}

func TestCapture_MultiColumnForeignKeyPreservesColumnOrder(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()

		_, err := conn.ExecContext(ctx, `
			CREATE TABLE tenants (
				org_id uuid,
				region text,
				PRIMARY KEY (org_id, region)
			);
			CREATE TABLE widgets (
				id uuid PRIMARY KEY,
				tenant_region text,
				tenant_org_id uuid,
				FOREIGN KEY (tenant_org_id, tenant_region) REFERENCES tenants(org_id, region)
			);
		`)
		require.NoError(t, err)

		intro := introspect.New(&db.RDB{DB: conn})
		snap, err := intro.Capture(ctx, uuid.New())
		require.NoError(t, err)

		require.Len(t, snap.ForeignKeys, 1)
		fk := snap.ForeignKeys[0]

		// conkey orders the source columns (tenant_org_id, tenant_region) as
		// declared in the FOREIGN KEY clause, not alphabetically, and each
		// entry must stay paired with its corresponding referenced column.
		require.Equal(t, []string{"tenant_org_id", "tenant_region"}, fk.SourceColumns)
		require.Equal(t, []string{"org_id", "region"}, fk.ReferencedColumns)
	})
}

func TestCapture_ChecksumIsDeterministic(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, connStr string) {
		ctx := context.Background()

		_, err := conn.ExecContext(ctx, `CREATE TABLE widgets (id uuid PRIMARY KEY, name text)`)
		require.NoError(t, err)

		intro := introspect.New(&db.RDB{DB: conn})
		first, err := intro.Capture(ctx, uuid.New())
		require.NoError(t, err)
		second, err := intro.Capture(ctx, uuid.New())
		require.NoError(t, err)

		assert.Equal(t, first.Checksum, second.Checksum)
	})
}
