package main

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// getAESKey returns the hex-encoded AES-128 key provisioned for a device, or
// ErrRecordNotFound when the device is unknown or disabled.
func getAESKey(db *sql.DB, ctx context.Context, publicName string) (string, error) {
	var secret string
	row := db.QueryRowContext(ctx, "SELECT secret FROM aes_key WHERE public_name = ? AND active = 1", publicName)
	err := row.Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}
	return secret, nil
}

func insertAESKey(db *sql.DB, ctx context.Context, publicName string, secretHex string) error {
	_, err := db.ExecContext(ctx, "INSERT INTO aes_key (public_name, created_at, active, secret) VALUES (?, ?, 1, ?)",
		publicName, time.Now().Unix(), secretHex)
	return err
}
