package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// GetUserProfile retrieves the free-form profile data of a user.
func GetUserProfile(db *sqlx.DB, userID int) (map[string]interface{}, error) {
	user, err := GetUser(db, userID)
	if err != nil {
		return nil, err
	}
	return decodeProfile(user.Profile), nil
}

// UpdateUserProfile merges fields into the stored profile and returns the
// result. A null value removes the field.
func UpdateUserProfile(db *sqlx.DB, userID int, fields map[string]interface{}) (map[string]interface{}, error) {
	tx, err := db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.Get(&raw, "SELECT profile FROM users_v1 WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile for user %d: %w", userID, err)
	}

	profile := decodeProfile(raw)
	for k, v := range fields {
		if v == nil {
			delete(profile, k)
			continue
		}
		profile[k] = v
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile for user %d: %w", userID, err)
	}
	_, err = tx.Exec(`UPDATE users_v1 SET profile = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, string(encoded), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile for user %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return profile, nil
}

func decodeProfile(raw string) map[string]interface{} {
	profile := map[string]interface{}{}
	if raw == "" {
		return profile
	}
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return map[string]interface{}{"_value": raw}
	}
	return profile
}
