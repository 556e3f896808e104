// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory database/sql driver, replaying
// canned rows and recording the statements it is given.
package fakedb // import "github.com/go-lpc/svec/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

// Query is a statement received by the driver.
type Query struct {
	SQL  string
	Args []driver.Value
}

var state struct {
	run sync.Mutex // serializes Run calls

	mu   sync.Mutex
	rows Rows
	log  []Query
}

// Run executes f with the driver replaying rows for every query.
// Run returns the statements executed by f.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) ([]Query, error) {
	state.run.Lock()
	defer state.run.Unlock()

	state.mu.Lock()
	state.rows = rows
	state.log = nil
	state.mu.Unlock()

	err := f(ctx)

	state.mu.Lock()
	defer state.mu.Unlock()
	qs := state.log
	state.log = nil
	state.rows = Rows{}
	return qs, err
}

func record(query string, args []driver.Value) Rows {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.log = append(state.log, Query{
		SQL:  query,
		Args: append([]driver.Value(nil), args...),
	})

	rows := Rows{
		Names:  state.rows.Names,
		Values: make([][]driver.Value, len(state.rows.Values)),
	}
	copy(rows.Values, state.rows.Values)
	return rows
}

func init() {
	sql.Register("fakedb", &Driver{})
}

// Driver is the fakedb database/sql driver.
type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &conn{}, nil
}

type conn struct{}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{query: query}, nil
}

func (c *conn) Close() error {
	return nil
}

func (c *conn) Begin() (driver.Tx, error) {
	return tx{}, nil
}

type tx struct{}

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }

type stmt struct {
	query string
}

func (stmt *stmt) Close() error {
	return nil
}

// NumInput returns -1: placeholders are not checked.
func (stmt *stmt) NumInput() int {
	return -1
}

func (stmt *stmt) Exec(args []driver.Value) (driver.Result, error) {
	record(stmt.query, args)
	return driver.RowsAffected(1), nil
}

func (stmt *stmt) Query(args []driver.Value) (driver.Rows, error) {
	rows := record(stmt.query, args)
	return &rows, nil
}

// Rows is a canned result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next populates dest with the next row.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*conn)(nil)
	_ driver.Tx     = tx{}
	_ driver.Stmt   = (*stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
