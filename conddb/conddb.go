// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb gives access to the configuration database of the
// SVEC carrier boards.
package conddb // import "github.com/go-lpc/svec/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/svec/carrier"
	"github.com/go-sql-driver/mysql"
)

var (
	host = "localhost"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve the configuration of
// carrier boards and to record their boot history.
type DB struct {
	db   *sql.DB
	name string // name of the database
}

// Open opens a connection to the database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = db
	return cfg.FormatDSN()
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Crates returns the names of the VME crates holding carrier boards.
func (db *DB) Crates(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var crates []string
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT DISTINCT crate FROM svec_boards ORDER BY crate",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query crates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var crate string
		err = rows.Scan(&crate)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not get crate value: %w", err)
		}
		crates = append(crates, crate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for crates: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving crates: %w", err)
	}

	return crates, nil
}

// Boards returns the configuration of the carrier boards of a crate.
func (db *DB) Boards(ctx context.Context, crate string) (carrier.Configs, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT lun, vmebase1, vmebase2, vector, level, fw_name FROM svec_boards
WHERE crate=?
ORDER BY lun
`,
		crate,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run boards query: %w", err)
	}
	defer rows.Close()

	cfgs := make(carrier.Configs)
	i := 0
	for rows.Next() {
		var (
			cfg carrier.BoardConfig
			fw  sql.NullString
		)
		err = rows.Scan(
			&cfg.LUN, &cfg.VMEBase1, &cfg.VMEBase2,
			&cfg.Vector, &cfg.Level, &fw,
		)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d for boards: %w", i, err)
		}
		i++
		cfg.Firmware = fw.String

		err = cfgs.Add(cfg)
		if err != nil {
			return nil, fmt.Errorf("conddb: invalid board in crate %q: %w", crate, err)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for boards: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving boards: %w", err)
	}

	if len(cfgs) == 0 {
		return nil, fmt.Errorf("conddb: no board in crate %q", crate)
	}

	return cfgs, nil
}

// LogBoot records the outcome of the last boot of a carrier board.
func (db *DB) LogBoot(ctx context.Context, crate string, st carrier.Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var msg sql.NullString
	if st.Err != nil {
		msg = sql.NullString{String: st.Err.Error(), Valid: true}
	}

	_, err := db.db.ExecContext(
		ctx,
		`
INSERT INTO svec_boots (crate, lun, fw_name, fw_size, outcome, error, datetime)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		crate, st.LUN, st.Firmware, st.Size, st.Outcome.String(), msg,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("conddb: could not record boot of card lun %d: %w", st.LUN, err)
	}
	return nil
}
