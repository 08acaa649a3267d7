package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// 设置项
const (
	SettingLastModel = "last_model_id"
)

// GetSetting 读取设置项；不存在返回 ErrNotFound
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetSettingOr 读取设置项，不存在时返回默认值
func (s *Store) GetSettingOr(key, def string) string {
	v, err := s.GetSetting(key)
	if err != nil {
		return def
	}
	return v
}

// SetSetting 写入设置项
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
