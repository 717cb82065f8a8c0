package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

// Схема хранилища. hwid_limit хранится как TEXT ("1" либо "unlimited"):
// текущая семантика двоичная, но тип колонки оставляет место под счетчик
// устройств без миграции.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS license_keys (
		key             TEXT PRIMARY KEY,
		expiry          TEXT NOT NULL DEFAULT 'lifetime',
		hwid            TEXT,
		hwid_limit      TEXT NOT NULL DEFAULT '1',
		execute_payload BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS version_info (
		id             SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		version_number TEXT NOT NULL,
		download_url   TEXT NOT NULL DEFAULT '',
		release_notes  TEXT NOT NULL DEFAULT '',
		force_update   BOOLEAN NOT NULL DEFAULT FALSE,
		artifact_key   TEXT,
		artifact_name  TEXT,
		released_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id             SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		global_payload TEXT NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema создает таблицы хранилища, если они еще не существуют.
// Вызывается один раз при старте сервера.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка создания схемы БД: %w", err)
		}
	}
	log.Println("[Repo] Схема БД проверена.")
	return nil
}
