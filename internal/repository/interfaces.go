// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"time"
)

// RevocationRepository はログアウト済みセッション（jti）の失効リストの永続化インターフェース。
// session.RevocationStore を満たす。
type RevocationRepository interface {
	// Revoke はjtiをexpiresAtまで失効扱いにする。既に登録済みの場合は期限を上書きする。
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// IsRevoked はjtiが失効済み（かつ期限内）かを返す。
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// DeleteExpired はbefore以前に期限切れとなったエントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
