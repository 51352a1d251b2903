package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ykval/otp"
)

// Yubikey is the persisted per-device replay state: the highest accepted
// counter pair plus the timestamp fields and nonce of the last accepted
// submission.
type Yubikey struct {
	PublicName string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Active     bool
	Counter    int64
	Use        int64
	Low        int64
	High       int64
	Nonce      string
}

func (y *Yubikey) Counters() otp.Counters {
	return otp.Counters{Counter: y.Counter, Use: y.Use}
}

func getYubikey(db *sql.DB, ctx context.Context, publicName string) (Yubikey, error) {
	var yubikey Yubikey
	var createdAtUnix, modifiedAtUnix, active int64
	row := db.QueryRowContext(ctx, "SELECT public_name, created_at, modified_at, active, counter, session_use, low, high, nonce FROM yubikey WHERE public_name = ?", publicName)
	err := row.Scan(&yubikey.PublicName, &createdAtUnix, &modifiedAtUnix, &active, &yubikey.Counter, &yubikey.Use, &yubikey.Low, &yubikey.High, &yubikey.Nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return Yubikey{}, ErrRecordNotFound
	}
	if err != nil {
		return Yubikey{}, err
	}
	yubikey.CreatedAt = time.Unix(createdAtUnix, 0)
	yubikey.ModifiedAt = time.Unix(modifiedAtUnix, 0)
	yubikey.Active = active == 1
	return yubikey, nil
}

func insertYubikey(db *sql.DB, ctx context.Context, yubikey *Yubikey) error {
	active := 0
	if yubikey.Active {
		active = 1
	}
	_, err := db.ExecContext(ctx, "INSERT INTO yubikey (public_name, created_at, modified_at, active, counter, session_use, low, high, nonce) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		yubikey.PublicName, yubikey.CreatedAt.Unix(), yubikey.ModifiedAt.Unix(), active, yubikey.Counter, yubikey.Use, yubikey.Low, yubikey.High, yubikey.Nonce)
	return err
}

// updateYubikeyState advances the stored high-water mark. The guard clause
// keeps the update monotonic even if two submissions race: the row only
// changes when the new counters are strictly ahead.
func updateYubikeyState(db *sql.DB, ctx context.Context, publicName string, counters otp.Counters, low int64, high int64, nonce string) error {
	_, err := db.ExecContext(ctx, "UPDATE yubikey SET counter = ?, session_use = ?, low = ?, high = ?, nonce = ?, modified_at = ? WHERE public_name = ? AND (counter < ? OR (counter = ? AND session_use < ?))",
		counters.Counter, counters.Use, low, high, nonce, time.Now().Unix(), publicName, counters.Counter, counters.Counter, counters.Use)
	return err
}
