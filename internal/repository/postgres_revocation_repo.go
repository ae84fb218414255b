package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// psq はプレースホルダを $N 形式にしたステートメントビルダー。
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const revokedSessionsTable = "revoked_sessions"

// PostgresRevocationRepo はPostgreSQLを使用した失効リストリポジトリ。
type PostgresRevocationRepo struct {
	db *sql.DB
}

// NewPostgresRevocationRepo はPostgresRevocationRepoを生成する。
func NewPostgresRevocationRepo(db *sql.DB) *PostgresRevocationRepo {
	return &PostgresRevocationRepo{db: db}
}

// Revoke はjtiを失効リストに登録する。既存エントリの期限は短縮しない。
func (r *PostgresRevocationRepo) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	query, args, err := psq.Insert(revokedSessionsTable).
		Columns("jti", "expires_at").
		Values(jti, expiresAt).
		Suffix("ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(revoked_sessions.expires_at, EXCLUDED.expires_at)").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build revoke query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked はjtiが期限内の失効エントリとして存在するかを返す。
func (r *PostgresRevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query, args, err := psq.Select("1").
		From(revokedSessionsTable).
		Where(sq.Eq{"jti": jti}).
		Where("expires_at > now()").
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build revocation query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return true, nil
}

// DeleteExpired は期限切れの失効エントリを削除する。
func (r *PostgresRevocationRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psq.Delete(revokedSessionsTable).
		Where(sq.LtOrEq{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build cleanup query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ RevocationRepository = (*PostgresRevocationRepo)(nil)
