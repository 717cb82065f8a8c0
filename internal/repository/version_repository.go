package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/keyserver/models"
)

// VersionRepository определяет методы для работы с записью версии обновления
// и глобальным payload. И то, и другое — одиночные записи (id=1).
type VersionRepository interface {
	GetVersion(ctx context.Context) (*models.VersionInfo, error)
	SetVersion(ctx context.Context, v *models.VersionInfo) error
	GetGlobalPayload(ctx context.Context) (string, error)
	SetGlobalPayload(ctx context.Context, payload string) error
}

// postgresVersionRepository реализует VersionRepository для PostgreSQL.
type postgresVersionRepository struct {
	db *sqlx.DB
}

// NewPostgresVersionRepository создает новый экземпляр репозитория версий.
func NewPostgresVersionRepository(db *sqlx.DB) VersionRepository {
	return &postgresVersionRepository{db: db}
}

// GetVersion возвращает текущую запись о версии.
// Возвращает ErrVersionNotSet, если оператор еще ни разу не публиковал версию.
func (r *postgresVersionRepository) GetVersion(ctx context.Context) (*models.VersionInfo, error) {
	query := `SELECT version_number, download_url, release_notes, force_update,
	                 artifact_key, artifact_name, released_at
	          FROM version_info WHERE id=1`
	var v models.VersionInfo

	err := r.db.GetContext(ctx, &v, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotSet
		}
		log.Printf("[VersionRepo] Ошибка при получении записи версии: %v", err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение версии: %w", err)
	}

	return &v, nil
}

// SetVersion перезаписывает единственную запись о версии (upsert по id=1).
// released_at выставляется базой на каждую публикацию.
func (r *postgresVersionRepository) SetVersion(ctx context.Context, v *models.VersionInfo) error {
	query := `INSERT INTO version_info
	              (id, version_number, download_url, release_notes, force_update, artifact_key, artifact_name, released_at)
	          VALUES (1, $1, $2, $3, $4, $5, $6, now())
	          ON CONFLICT (id) DO UPDATE SET
	              version_number=$1, download_url=$2, release_notes=$3,
	              force_update=$4, artifact_key=$5, artifact_name=$6, released_at=now()`

	_, err := r.db.ExecContext(ctx, query,
		v.VersionNumber, v.DownloadURL, v.ReleaseNotes, v.ForceUpdate, v.ArtifactKey, v.ArtifactName,
	)
	if err != nil {
		log.Printf("[VersionRepo] Ошибка при сохранении записи версии '%s': %v", v.VersionNumber, err)
		return fmt.Errorf("ошибка выполнения запроса на сохранение версии: %w", err)
	}

	log.Printf("[VersionRepo] Запись версии обновлена: %s", v.VersionNumber)
	return nil
}

// GetGlobalPayload возвращает глобальный payload.
// Отсутствие строки настроек — не ошибка: payload просто еще не задавали.
func (r *postgresVersionRepository) GetGlobalPayload(ctx context.Context) (string, error) {
	var payload string

	err := r.db.GetContext(ctx, &payload, `SELECT global_payload FROM settings WHERE id=1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		log.Printf("[VersionRepo] Ошибка при получении глобального payload: %v", err)
		return "", fmt.Errorf("ошибка выполнения запроса на получение payload: %w", err)
	}

	return payload, nil
}

// SetGlobalPayload сохраняет глобальный payload (upsert по id=1).
func (r *postgresVersionRepository) SetGlobalPayload(ctx context.Context, payload string) error {
	query := `INSERT INTO settings (id, global_payload) VALUES (1, $1)
	          ON CONFLICT (id) DO UPDATE SET global_payload=$1`

	_, err := r.db.ExecContext(ctx, query, payload)
	if err != nil {
		log.Printf("[VersionRepo] Ошибка при сохранении глобального payload: %v", err)
		return fmt.Errorf("ошибка выполнения запроса на сохранение payload: %w", err)
	}

	log.Printf("[VersionRepo] Глобальный payload обновлен (%d байт)", len(payload))
	return nil
}

// Кастомные ошибки репозитория версий.
var (
	ErrVersionNotSet = errors.New("запись о версии еще не создана")
)
