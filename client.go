package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Client is an API consumer of the verify endpoint. Its secret is the raw
// HMAC key both sides sign protocol messages with.
type Client struct {
	ID        int64
	CreatedAt time.Time
	Active    bool
	Secret    []byte
}

func (c *Client) EncodeToJSON() string {
	encoded := fmt.Sprintf(`{"id":%d,"created_at":%d,"active":%t,"secret":"%s"}`, c.ID, c.CreatedAt.Unix(), c.Active, base64.StdEncoding.EncodeToString(c.Secret))
	return encoded
}

func getClient(db *sql.DB, ctx context.Context, id int64) (Client, error) {
	var client Client
	var createdAtUnix, active int64
	var secret string
	row := db.QueryRowContext(ctx, "SELECT id, created_at, active, secret FROM client WHERE id = ?", id)
	err := row.Scan(&client.ID, &createdAtUnix, &active, &secret)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrRecordNotFound
	}
	if err != nil {
		return Client{}, err
	}
	client.CreatedAt = time.Unix(createdAtUnix, 0)
	client.Active = active == 1
	client.Secret, err = base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return Client{}, err
	}
	return client, nil
}

func createClient(db *sql.DB, ctx context.Context) (Client, error) {
	secret := make([]byte, 20)
	_, err := rand.Read(secret)
	if err != nil {
		return Client{}, err
	}
	client := Client{
		CreatedAt: time.Unix(time.Now().Unix(), 0),
		Active:    true,
		Secret:    secret,
	}
	result, err := db.ExecContext(ctx, "INSERT INTO client (created_at, active, secret) VALUES (?, 1, ?)",
		client.CreatedAt.Unix(), base64.StdEncoding.EncodeToString(secret))
	if err != nil {
		return Client{}, err
	}
	client.ID, err = result.LastInsertId()
	if err != nil {
		return Client{}, err
	}
	return client, nil
}
