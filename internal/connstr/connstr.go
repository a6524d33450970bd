// SPDX-License-Identifier: Apache-2.0

// Package connstr parses and manipulates PostgreSQL connection strings.
package connstr

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultPort = "5432"

// Parsed is a validated connection string per §6: scheme, host, port
// (defaulted), database (required) and whether TLS is required.
type Parsed struct {
	Host       string
	Port       string
	Database   string
	User       string
	RequireTLS bool
	RawOptions url.Values
}

// ErrMissingDatabase is returned when the connection string has no database
// path component. A missing database is always an error; a missing port
// defaults to 5432.
var ErrMissingDatabase = fmt.Errorf("connection string is missing a database name")

// Parse validates and normalizes a postgres:// or postgresql:// connection
// string. TLS is required when the host matches *.neon.tech or sslmode=require
// appears in the query string.
func Parse(connStr string) (*Parsed, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("unsupported scheme %q, expected postgres:// or postgresql://", u.Scheme)
	}

	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		return nil, ErrMissingDatabase
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	q := u.Query()
	requireTLS := strings.HasSuffix(host, ".neon.tech") || q.Get("sslmode") == "require"

	user := ""
	if u.User != nil {
		user = u.User.Username()
	}

	return &Parsed{
		Host:       host,
		Port:       port,
		Database:   database,
		User:       user,
		RequireTLS: requireTLS,
		RawOptions: q,
	}, nil
}

// AppendSearchPathOption takes a Postgres connection string in URL format
// and produces the same connection string with the search_path option set
// to the provided schema.
func AppendSearchPathOption(connStr, schema string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	if schema == "" {
		return connStr, nil
	}

	q := u.Query()
	q.Set("options", fmt.Sprintf("-c search_path=%s", schema))
	encodedQuery := q.Encode()

	// Replace '+' with '%20' to ensure proper encoding of spaces within the
	// `options` query parameter.
	encodedQuery = strings.ReplaceAll(encodedQuery, "+", "%20")

	u.RawQuery = encodedQuery

	return u.String(), nil
}
