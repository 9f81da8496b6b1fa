// Package storage backs the script-facing database API with an embedded
// sqlite file. Queries run synchronously; asynchronous delivery to script
// code is layered on top by the runtime's executor.
package storage

import (
	"database/sql"
	"fmt"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("amxjs.storage")

// ExecResult describes the outcome of a statement that does not return
// rows.
type ExecResult struct {
	AffectedRows int64
	LastInsertID int64
}

// Database is a handle on one sqlite database file.
type Database struct {
	path string
	db   *sql.DB
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: configuring %s: %w", path, err)
	}
	log.Infof("opened database: %s", path)
	return &Database{path: path, db: db}, nil
}

// Path returns the file the database was opened with.
func (d *Database) Path() string {
	return d.path
}

// Query runs a statement that returns rows and materializes every row as
// a column-name-to-value map, in result order.
func (d *Database) Query(query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("storage: reading columns: %w", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scans := make([]interface{}, len(columns))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return nil, fmt.Errorf("storage: scanning row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			row[column] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterating rows: %w", err)
	}
	return results, nil
}

// Execute runs a statement that does not return rows.
func (d *Database) Execute(query string, args ...interface{}) (ExecResult, error) {
	result, err := d.db.Exec(query, args...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("storage: statement failed: %w", err)
	}
	affected, _ := result.RowsAffected()
	lastID, _ := result.LastInsertId()
	return ExecResult{AffectedRows: affected, LastInsertID: lastID}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}
