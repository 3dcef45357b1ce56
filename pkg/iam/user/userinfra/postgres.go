package userinfra

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresUserRepository stores users in the users table.
type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

type userRow struct {
	ID             string         `db:"id"`
	Email          string         `db:"email"`
	Username       string         `db:"username"`
	KeycloakUserID sql.NullString `db:"keycloak_user_id"`
	SSOProvider    sql.NullString `db:"sso_provider"`
	PhoneNumber    sql.NullString `db:"phone_number"`
	Address        sql.NullString `db:"address"`
	Description    sql.NullString `db:"description"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toRow(u *user.User) userRow {
	return userRow{
		ID:             u.ID.String(),
		Email:          u.Email,
		Username:       user.NormalizeUsername(u.Username),
		KeycloakUserID: nullString(u.KeycloakUserID.String()),
		SSOProvider:    nullString(string(u.SSOProvider)),
		PhoneNumber:    nullString(u.PhoneNumber),
		Address:        nullString(u.Address),
		Description:    nullString(u.Description),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (r userRow) toDomain() *user.User {
	return &user.User{
		ID:             kernel.UserID(r.ID),
		Email:          r.Email,
		Username:       r.Username,
		KeycloakUserID: kernel.IdentityID(r.KeycloakUserID.String),
		SSOProvider:    iam.SSOProvider(r.SSOProvider.String),
		PhoneNumber:    r.PhoneNumber.String,
		Address:        r.Address.String,
		Description:    r.Description.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// uniqueError maps a unique violation to the duplicate error of the
// offending column. Concurrent registrations that both pass the pre-check
// end up here.
func uniqueError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return iam.ErrDuplicateEmail()
	case strings.Contains(pqErr.Constraint, "username"):
		return iam.ErrDuplicateUsername()
	default:
		return errx.New("Identity already linked", errx.TypeConflict).
			WithDetail("constraint", pqErr.Constraint)
	}
}

const userColumns = `id, email, username, keycloak_user_id, sso_provider,
	phone_number, address, description, created_at, updated_at`

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :username, :keycloak_user_id, :sso_provider,
			:phone_number, :address, :description, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, toRow(u)); err != nil {
		if dup := uniqueError(err); dup != nil {
			return dup
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	return nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users SET
			phone_number = :phone_number,
			address = :address,
			description = :description,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, toRow(u))
	if err != nil {
		return errx.Wrap(err, "failed to update user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	return requireRow(result, u.ID)
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id kernel.UserID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id.String()); err != nil {
		return errx.Wrap(err, "failed to delete user", errx.TypeInternal).
			WithDetail("user_id", id.String())
	}
	return nil
}

func (r *PostgresUserRepository) SetKeycloakUserID(ctx context.Context, id kernel.UserID, keycloakID kernel.IdentityID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET keycloak_user_id = $2, updated_at = $3 WHERE id = $1`,
		id.String(), keycloakID.String(), time.Now().UTC())
	if err != nil {
		if dup := uniqueError(err); dup != nil {
			return dup
		}
		return errx.Wrap(err, "failed to link user", errx.TypeInternal).
			WithDetail("user_id", id.String())
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id kernel.UserID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if n == 0 {
		return iam.ErrUserNotFound().WithDetail("user_id", id.String())
	}
	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, what, query string, args ...any) (*user.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, iam.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by "+what, errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	return r.findOne(ctx, "id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, "email", `SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email))
}

func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.findOne(ctx, "username", `SELECT `+userColumns+` FROM users WHERE lower(username) = $1`, user.NormalizeUsername(username))
}

func (r *PostgresUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*user.User, error) {
	return r.findOne(ctx, "identifier",
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR lower(username) = $2 ORDER BY (email = $1) DESC LIMIT 1`,
		user.NormalizeEmail(identifier), user.NormalizeUsername(identifier))
}

func (r *PostgresUserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*user.User, error) {
	return r.findOne(ctx, "email or username",
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR lower(username) = $2 ORDER BY (email = $1) DESC LIMIT 1`,
		user.NormalizeEmail(email), user.NormalizeUsername(username))
}

// PostgresSettingRepository stores app_settings rows.
type PostgresSettingRepository struct {
	db *sqlx.DB
}

func NewPostgresSettingRepository(db *sqlx.DB) *PostgresSettingRepository {
	return &PostgresSettingRepository{db: db}
}

func (r *PostgresSettingRepository) Get(ctx context.Context, key string) (string, error) {
	var setting user.AppSetting
	err := r.db.GetContext(ctx, &setting,
		`SELECT setting_key, setting_value FROM app_settings WHERE setting_key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", iam.ErrSettingNotFound(key)
		}
		return "", errx.Wrap(err, "failed to read setting", errx.TypeInternal).WithDetail("key", key)
	}
	return setting.Value, nil
}

func (r *PostgresSettingRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key) DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return errx.Wrap(err, "failed to write setting", errx.TypeInternal).WithDetail("key", key)
	}
	return nil
}
