// SPDX-License-Identifier: Apache-2.0

// Package cliaudit persists auditstore.Entry values across CLI invocations
// as newline-delimited JSON. The kernel's auditstore.Store (§3, §5) is an
// in-memory, per-process log designed for a long-running service; the CLI
// is a fresh process per command, so it needs its own durable sink. A
// JSON-lines file is the simplest thing that can round-trip an append-only
// log without reaching for a library no part of the retrieved pack already
// justifies for this job (see DESIGN.md).
package cliaudit

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/schemaflow/schemaflow/pkg/auditstore"
)

// Append writes one entry as a single JSON line to path, creating the file
// if necessary.
func Append(path string, e auditstore.Entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = f.Write(raw)
	return err
}

// AppendAll writes every entry currently held by store to path, oldest
// first, so the file stays in chronological order. Used right after an
// orchestrator call, whose in-process auditstore.Store only lives for the
// one CLI invocation.
func AppendAll(path string, store *auditstore.Store) error {
	entries := store.All()
	for i := len(entries) - 1; i >= 0; i-- {
		if err := Append(path, entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll loads every entry previously appended to path. A missing file is
// not an error: an audit log with no history yet is empty, not broken.
func ReadAll(path string) ([]auditstore.Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []auditstore.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e auditstore.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
