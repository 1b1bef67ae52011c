package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/rampart/internal/database"
	"github.com/BradenHooton/rampart/internal/models"
)

// PrincipalRepository defines principal persistence operations
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)
	Create(ctx context.Context, p *models.Principal) (*models.Principal, error)
	// SetSecondFactor stores a new TOTP secret and backup code set, resetting the replay guard
	SetSecondFactor(ctx context.Context, id, secret string, backupHashes []string) error
	// AdvanceTOTPStep records step as the last accepted step. It returns false
	// when step is not newer than the stored one.
	AdvanceTOTPStep(ctx context.Context, id string, step int64) (bool, error)
	// ConsumeBackupCode removes hash from the principal. It returns false when
	// the hash was not present.
	ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error)
	ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error
}

// SecretCipher encrypts TOTP secrets at rest
type SecretCipher interface {
	EncryptSecret(secret []byte) ([]byte, []byte, error)
	DecryptSecret(encrypted, nonce []byte) ([]byte, error)
}

// principalRepoImpl implements PrincipalRepository on Postgres
type principalRepoImpl struct {
	pool   *pgxpool.Pool
	cipher SecretCipher
}

// NewPrincipalRepository creates a Postgres principal repository
func NewPrincipalRepository(db *database.DB, cipher SecretCipher) PrincipalRepository {
	return &principalRepoImpl{pool: db.Pool, cipher: cipher}
}

const principalColumns = `id, email, password_hash, roles, totp_secret, totp_nonce, backup_code_hashes, last_totp_step`

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *principalRepoImpl) scanPrincipal(row rowScanner) (*models.Principal, error) {
	var p models.Principal
	var secret, nonce []byte

	err := row.Scan(
		&p.ID, &p.Email, &p.PasswordHash, &p.Roles,
		&secret, &nonce, &p.BackupCodeHashes, &p.LastTOTPStep,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(secret) > 0 {
		plain, err := r.cipher.DecryptSecret(secret, nonce)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt totp secret: %w", err)
		}
		p.TOTPSecret = string(plain)
	}

	return &p, nil
}

func (r *principalRepoImpl) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return r.scanPrincipal(r.pool.QueryRow(ctx, query, id))
}

func (r *principalRepoImpl) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`
	return r.scanPrincipal(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *principalRepoImpl) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	if p.BackupCodeHashes == nil {
		p.BackupCodeHashes = []string{}
	}

	var secret, nonce []byte
	if p.TOTPSecret != "" {
		var err error
		secret, nonce, err = r.cipher.EncryptSecret([]byte(p.TOTPSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt totp secret: %w", err)
		}
	}

	query := `
		INSERT INTO principals (id, email, password_hash, roles, totp_secret, totp_nonce, backup_code_hashes, last_totp_step)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + principalColumns

	return r.scanPrincipal(r.pool.QueryRow(ctx, query,
		p.ID, strings.ToLower(p.Email), p.PasswordHash, p.Roles,
		secret, nonce, p.BackupCodeHashes, p.LastTOTPStep,
	))
}

func (r *principalRepoImpl) SetSecondFactor(ctx context.Context, id, secret string, backupHashes []string) error {
	encrypted, nonce, err := r.cipher.EncryptSecret([]byte(secret))
	if err != nil {
		return fmt.Errorf("failed to encrypt totp secret: %w", err)
	}

	query := `
		UPDATE principals
		SET totp_secret = $2, totp_nonce = $3, backup_code_hashes = $4, last_totp_step = 0, updated_at = $5
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, encrypted, nonce, backupHashes, time.Now())
}

func (r *principalRepoImpl) AdvanceTOTPStep(ctx context.Context, id string, step int64) (bool, error) {
	query := `
		UPDATE principals SET last_totp_step = $2, updated_at = $3
		WHERE id = $1 AND last_totp_step < $2
	`
	result, err := r.pool.Exec(ctx, query, id, step, time.Now())
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *principalRepoImpl) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	query := `
		UPDATE principals
		SET backup_code_hashes = array_remove(backup_code_hashes, $2), updated_at = $3
		WHERE id = $1 AND $2 = ANY(backup_code_hashes)
	`
	result, err := r.pool.Exec(ctx, query, id, hash, time.Now())
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *principalRepoImpl) ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	query := `UPDATE principals SET backup_code_hashes = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, hashes, time.Now())
}

func (r *principalRepoImpl) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
