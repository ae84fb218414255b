package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationRepo はプロセス内メモリで失効リストを保持する。
// DATABASE_URL未設定時に使う。プロセス再起動で内容は失われる。
type MemoryRevocationRepo struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationRepo はMemoryRevocationRepoを生成する。
func NewMemoryRevocationRepo() *MemoryRevocationRepo {
	return &MemoryRevocationRepo{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke はjtiを失効リストに登録する。既存エントリの期限は短縮しない。
func (r *MemoryRevocationRepo) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[jti]; ok && current.After(expiresAt) {
		return nil
	}
	r.entries[jti] = expiresAt
	return nil
}

// IsRevoked はjtiが期限内の失効エントリとして存在するかを返す。
func (r *MemoryRevocationRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expiresAt, ok := r.entries[jti]
	if !ok {
		return false, nil
	}
	return expiresAt.After(r.now()), nil
}

// DeleteExpired は期限切れの失効エントリを削除する。
func (r *MemoryRevocationRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for jti, expiresAt := range r.entries {
		if !expiresAt.After(before) {
			delete(r.entries, jti)
			deleted++
		}
	}
	return deleted, nil
}

// Len は保持中のエントリ数を返す。
func (r *MemoryRevocationRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// compile-time interface check
var _ RevocationRepository = (*MemoryRevocationRepo)(nil)
