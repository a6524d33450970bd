// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"net/url"
	"strings"

	_ "github.com/lib/pq"

	"github.com/schemaflow/schemaflow/cmd/flags"
	"github.com/schemaflow/schemaflow/internal/connstr"
	"github.com/schemaflow/schemaflow/pkg/db"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// openDB opens the governed Postgres connection named by --database-url
// (or SCHEMAFLOW_DATABASE_URL), wrapped in the kernel's retrying db.DB.
// The connection string is validated against §6's contract (scheme,
// required database, *.neon.tech/sslmode=require TLS detection) before
// sql.Open ever sees it. When schema is non-empty, the search_path option
// is appended so catalog queries resolve against that schema first.
func openDB(schema string) (*db.RDB, error) {
	raw := flags.DatabaseURL()
	if raw == "" {
		return nil, sferrors.Config{Reason: "DATABASE_URL (or --database-url) is required for this command"}
	}

	parsed, err := connstr.Parse(raw)
	if err != nil {
		return nil, sferrors.Validation{Reason: err.Error()}
	}

	dsn := raw
	if parsed.RequireTLS {
		dsn, err = forceSSLMode(dsn)
		if err != nil {
			return nil, sferrors.Validation{Reason: err.Error()}
		}
	}
	if schema != "" {
		dsn, err = connstr.AppendSearchPathOption(dsn, schema)
		if err != nil {
			return nil, sferrors.Validation{Reason: err.Error()}
		}
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, sferrors.Database{Op: "open connection", Err: err}
	}
	if err := conn.Ping(); err != nil {
		return nil, sferrors.Database{Op: "ping connection", Err: err}
	}
	return &db.RDB{DB: conn}, nil
}

// forceSSLMode sets sslmode=require on a connection string whose host
// matched §6's TLS-required rules but whose query string didn't already
// say so explicitly.
func forceSSLMode(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
	}
	u.RawQuery = strings.ReplaceAll(q.Encode(), "+", "%20")
	return u.String(), nil
}
