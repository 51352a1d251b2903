package main

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

var ErrRecordNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS client (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at INTEGER NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    secret TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS yubikey (
    public_name TEXT NOT NULL PRIMARY KEY,
    created_at INTEGER NOT NULL,
    modified_at INTEGER NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    counter INTEGER NOT NULL,
    session_use INTEGER NOT NULL,
    low INTEGER NOT NULL,
    high INTEGER NOT NULL,
    nonce TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS aes_key (
    public_name TEXT NOT NULL PRIMARY KEY,
    created_at INTEGER NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    secret TEXT NOT NULL
);
`

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
