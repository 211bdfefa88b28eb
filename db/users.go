package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-fm/chorus/models"
)

// CreateUser adds a new user. Users are created on first authentication.
func (db *DB) CreateUser(email string, username *string) (*models.User, error) {
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  username,
		Role:      "user",
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(`
	INSERT INTO users (id, email, username, role, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Username, user.Role, user.CreatedAt)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByEmail returns nil, nil when no user exists.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	return db.scanUser(db.QueryRow(`
	SELECT id, email, username, role, created_at
	FROM users WHERE email = ?`, email))
}

func (db *DB) GetUserByID(id string) (*models.User, error) {
	return db.scanUser(db.QueryRow(`
	SELECT id, email, username, role, created_at
	FROM users WHERE id = ?`, id))
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpsertAccount creates or updates the single (user, provider) account
// row, replacing tokens and scope on every login.
func (db *DB) UpsertAccount(acct *models.Account) (*models.Account, error) {
	now := time.Now().UTC()

	existing, err := db.GetAccount(acct.UserID, acct.Provider)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		acct.ID = uuid.NewString()
		acct.CreatedAt = now
		acct.UpdatedAt = now
		_, err = db.Exec(`
		INSERT INTO accounts (id, user_id, provider, external_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			acct.ID, acct.UserID, acct.Provider, acct.ExternalID,
			acct.AccessToken, acct.RefreshToken, acct.ExpiresAt, acct.Scope,
			acct.CreatedAt, acct.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return acct, nil
	}

	// Keep the previous refresh token when the provider did not send a
	// new one with this grant.
	refresh := acct.RefreshToken
	if refresh == "" {
		refresh = existing.RefreshToken
	}

	_, err = db.Exec(`
	UPDATE accounts
	SET external_id = ?, access_token = ?, refresh_token = ?, expires_at = ?, scope = ?, updated_at = ?
	WHERE id = ?`,
		acct.ExternalID, acct.AccessToken, refresh, acct.ExpiresAt, acct.Scope, now, existing.ID)
	if err != nil {
		return nil, err
	}

	existing.ExternalID = acct.ExternalID
	existing.AccessToken = acct.AccessToken
	existing.RefreshToken = refresh
	existing.ExpiresAt = acct.ExpiresAt
	existing.Scope = acct.Scope
	existing.UpdatedAt = now
	return existing, nil
}

// UpdateAccountTokens persists the result of a refresh-token grant. An
// empty refreshToken keeps the stored one.
func (db *DB) UpdateAccountTokens(accountID, accessToken, refreshToken string, expiresAt int64) error {
	now := time.Now().UTC()

	if refreshToken == "" {
		_, err := db.Exec(`
		UPDATE accounts SET access_token = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
			accessToken, expiresAt, now, accountID)
		return err
	}

	_, err := db.Exec(`
	UPDATE accounts SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		accessToken, refreshToken, expiresAt, now, accountID)
	return err
}

// GetAccount returns nil, nil when the user has no account for provider.
func (db *DB) GetAccount(userID, provider string) (*models.Account, error) {
	return db.scanAccount(db.QueryRow(`
	SELECT id, user_id, provider, external_id, access_token, refresh_token, expires_at, scope, created_at, updated_at
	FROM accounts WHERE user_id = ? AND provider = ?`, userID, provider))
}

func (db *DB) GetAccountByExternalID(externalID string) (*models.Account, error) {
	return db.scanAccount(db.QueryRow(`
	SELECT id, user_id, provider, external_id, access_token, refresh_token, expires_at, scope, created_at, updated_at
	FROM accounts WHERE external_id = ?`, externalID))
}

func (db *DB) scanAccount(row *sql.Row) (*models.Account, error) {
	acct := &models.Account{}
	err := row.Scan(
		&acct.ID, &acct.UserID, &acct.Provider, &acct.ExternalID,
		&acct.AccessToken, &acct.RefreshToken, &acct.ExpiresAt, &acct.Scope,
		&acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListAccounts returns every account for a provider, for the polling loops.
func (db *DB) ListAccounts(provider string) ([]*models.Account, error) {
	rows, err := db.Query(`
	SELECT id, user_id, provider, external_id, access_token, refresh_token, expires_at, scope, created_at, updated_at
	FROM accounts WHERE provider = ? ORDER BY created_at`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acct := &models.Account{}
		err := rows.Scan(
			&acct.ID, &acct.UserID, &acct.Provider, &acct.ExternalID,
			&acct.AccessToken, &acct.RefreshToken, &acct.ExpiresAt, &acct.Scope,
			&acct.CreatedAt, &acct.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}
