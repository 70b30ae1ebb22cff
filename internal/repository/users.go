package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/livrini/internal/model"
)

const userColumns = `id, nom, prenom, email, password_hash, adresse, role, statut, is_verified,
	otp_code, otp_expires_at, otp_purpose, otp_version, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u          model.User
		otpCode    *string
		otpExpires *time.Time
		otpPurpose *string
		otpVersion int64
	)

	err := row.Scan(
		&u.ID, &u.Nom, &u.Prenom, &u.Email, &u.PasswordHash, &u.Adresse, &u.Role, &u.Statut, &u.IsVerified,
		&otpCode, &otpExpires, &otpPurpose, &otpVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if otpCode != nil {
		otp := &model.OTP{Code: *otpCode, Version: otpVersion, Purpose: model.OTPPurposeVerification}
		if otpExpires != nil {
			otp.ExpiresAt = *otpExpires
		}
		if otpPurpose != nil && *otpPurpose != "" {
			otp.Purpose = model.OTPPurpose(*otpPurpose)
		}
		u.OTP = otp
	}

	return &u, nil
}

func otpArgs(otp *model.OTP) (code *string, expiresAt *time.Time, purpose *string) {
	if otp == nil {
		return nil, nil, nil
	}
	p := string(otp.Purpose)
	return &otp.Code, &otp.ExpiresAt, &p
}

// CreateUser сохраняет нового пользователя. Email хранится в нижнем регистре.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	code, expiresAt, purpose := otpArgs(u.OTP)

	var version int64
	if u.OTP != nil {
		version = 1
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, nom, prenom, email, password_hash, adresse, role, statut, is_verified,
			otp_code, otp_expires_at, otp_purpose, otp_version)
		 VALUES ($1, $2, $3, lower($4), $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		u.ID, u.Nom, u.Prenom, u.Email, u.PasswordHash, u.Adresse, string(u.Role), string(u.Statut), u.IsVerified,
		code, expiresAt, purpose, version,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}

	if u.OTP != nil {
		u.OTP.Version = version
	}
	return nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers возвращает всех пользователей, новые первыми.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// DeleteUser удаляет пользователя.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePendingRegistration перезаписывает данные неподтверждённого пользователя при повторной регистрации
// и выдаёт ему новый код. Возвращает новую версию кода.
// Если пользователь уже подтверждён, возвращается ErrUserNotFound.
func (r *PostgresRepository) UpdatePendingRegistration(ctx context.Context, u *model.User, otp model.OTP) (int64, error) {
	var version int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE users
			 SET nom = $2, prenom = $3, adresse = $4, password_hash = $5,
			     otp_code = $6, otp_expires_at = $7, otp_purpose = $8,
			     otp_version = otp_version + 1, updated_at = now()
			 WHERE id = $1 AND is_verified = FALSE
			 RETURNING otp_version`,
			u.ID, u.Nom, u.Prenom, u.Adresse, u.PasswordHash,
			otp.Code, otp.ExpiresAt, string(otp.Purpose),
		).Scan(&version)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("update pending registration: %w", err)
	}
	return version, nil
}

// SetUserOTP записывает новый код в единственный слот пользователя, вытесняя предыдущий.
func (r *PostgresRepository) SetUserOTP(ctx context.Context, userID uuid.UUID, otp model.OTP) (int64, error) {
	var version int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE users
			 SET otp_code = $2, otp_expires_at = $3, otp_purpose = $4,
			     otp_version = otp_version + 1, updated_at = now()
			 WHERE id = $1
			 RETURNING otp_version`,
			userID, otp.Code, otp.ExpiresAt, string(otp.Purpose),
		).Scan(&version)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("set user otp: %w", err)
	}
	return version, nil
}

// ConsumeVerificationOTP атомарно помечает пользователя подтверждённым и очищает слот,
// если версия кода не изменилась с момента чтения. Возвращает false, если код был перевыпущен.
func (r *PostgresRepository) ConsumeVerificationOTP(ctx context.Context, userID uuid.UUID, version int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL, otp_purpose = NULL, updated_at = now()
		 WHERE id = $1 AND otp_version = $2 AND otp_code IS NOT NULL`,
		userID, version,
	)
	if err != nil {
		return false, fmt.Errorf("consume verification otp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeResetOTP атомарно заменяет хеш пароля и очищает слот кода при совпадении версии.
func (r *PostgresRepository) ConsumeResetOTP(ctx context.Context, userID uuid.UUID, version int64, passwordHash []byte) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET password_hash = $3, otp_code = NULL, otp_expires_at = NULL, otp_purpose = NULL, updated_at = now()
		 WHERE id = $1 AND otp_version = $2 AND otp_purpose = 'reset'`,
		userID, version, passwordHash,
	)
	if err != nil {
		return false, fmt.Errorf("consume reset otp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateUser обновляет профильные поля пользователя: имя, адрес, статус и роль.
func (r *PostgresRepository) UpdateUser(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET nom = $2, prenom = $3, adresse = $4, statut = $5, role = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		u.ID, u.Nom, u.Prenom, u.Adresse, string(u.Statut), string(u.Role),
	).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
