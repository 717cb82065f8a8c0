package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/maynagashev/keyserver/models"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolationCode = "23505"
)

// KeyRepository определяет методы для работы с лицензионными ключами в хранилище.
type KeyRepository interface {
	GetKey(ctx context.Context, key string) (*models.LicenseKey, error)
	CreateKey(ctx context.Context, lk *models.LicenseKey) error
	DeleteKey(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]models.LicenseKey, error)
	// BindHwid атомарно привязывает устройство к непривязанному ключу
	// (compare-and-set на уровне БД). Возвращает true, если привязка
	// выполнена именно этим вызовом.
	BindHwid(ctx context.Context, key, hwid string) (bool, error)
	ResetHwid(ctx context.Context, key string) error
	TogglePayload(ctx context.Context, key string) (bool, error)
}

// postgresKeyRepository реализует KeyRepository для PostgreSQL.
type postgresKeyRepository struct {
	db *sqlx.DB
}

// NewPostgresKeyRepository создает новый экземпляр репозитория ключей для PostgreSQL.
func NewPostgresKeyRepository(db *sqlx.DB) KeyRepository {
	return &postgresKeyRepository{db: db}
}

// GetKey находит запись лицензионного ключа.
func (r *postgresKeyRepository) GetKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	query := `SELECT key, expiry, hwid, hwid_limit, execute_payload, created_at
	          FROM license_keys WHERE key=$1`
	var lk models.LicenseKey

	err := r.db.GetContext(ctx, &lk, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[KeyRepo] Ключ '%s' не найден", key)
			return nil, ErrKeyNotFound
		}
		log.Printf("[KeyRepo] Ошибка при поиске ключа '%s': %v", key, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение ключа: %w", err)
	}

	return &lk, nil
}

// CreateKey создает новую запись лицензионного ключа.
// Возвращает ErrKeyExists, если ключ уже зарегистрирован.
func (r *postgresKeyRepository) CreateKey(ctx context.Context, lk *models.LicenseKey) error {
	query := `INSERT INTO license_keys (key, expiry, hwid_limit, execute_payload)
	          VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query, lk.Key, lk.Expiry, lk.HwidLimit, lk.ExecutePayload)
	if err != nil {
		// Проверяем на ошибку нарушения уникальности (duplicate key)
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[KeyRepo] Ошибка создания: ключ '%s' уже существует", lk.Key)
			return ErrKeyExists
		}
		log.Printf("[KeyRepo] Непредвиденная ошибка при создании ключа '%s': %v", lk.Key, err)
		return fmt.Errorf("ошибка выполнения запроса на создание ключа: %w", err)
	}

	log.Printf("[KeyRepo] Ключ '%s' успешно создан (expiry=%s, limit=%s)", lk.Key, lk.Expiry, lk.HwidLimit)
	return nil
}

// DeleteKey удаляет запись ключа. Удаление немедленное и необратимое.
func (r *postgresKeyRepository) DeleteKey(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM license_keys WHERE key=$1`, key)
	if err != nil {
		log.Printf("[KeyRepo] Ошибка при удалении ключа '%s': %v", key, err)
		return fmt.Errorf("ошибка выполнения запроса на удаление ключа: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа удаленных строк: %w", err)
	}
	if affected == 0 {
		log.Printf("[KeyRepo] Удаление: ключ '%s' не найден", key)
		return ErrKeyNotFound
	}

	log.Printf("[KeyRepo] Ключ '%s' удален", key)
	return nil
}

// ListKeys возвращает все записи ключей.
// Пагинации нет: объемы данных операторские, а не пользовательские.
func (r *postgresKeyRepository) ListKeys(ctx context.Context) ([]models.LicenseKey, error) {
	query := `SELECT key, expiry, hwid, hwid_limit, execute_payload, created_at
	          FROM license_keys ORDER BY created_at`

	keys := make([]models.LicenseKey, 0)
	err := r.db.SelectContext(ctx, &keys, query)
	if err != nil {
		log.Printf("[KeyRepo] Ошибка при получении списка ключей: %v", err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение списка ключей: %w", err)
	}

	log.Printf("[KeyRepo] Получено %d ключей", len(keys))
	return keys, nil
}

// BindHwid привязывает устройство к ключу одним условным UPDATE:
// запись изменяется только если она сейчас не привязана. При гонке двух
// устройств за один непривязанный ключ победит ровно одно, второй вызов
// вернет false — сравнение перечитанной привязки остается за сервисом.
func (r *postgresKeyRepository) BindHwid(ctx context.Context, key, hwid string) (bool, error) {
	query := `UPDATE license_keys SET hwid=$2 WHERE key=$1 AND (hwid IS NULL OR hwid='')`

	res, err := r.db.ExecContext(ctx, query, key, hwid)
	if err != nil {
		log.Printf("[KeyRepo] Ошибка привязки устройства к ключу '%s': %v", key, err)
		return false, fmt.Errorf("ошибка выполнения запроса на привязку устройства: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}

	if affected == 1 {
		log.Printf("[KeyRepo] Ключ '%s' привязан к устройству '%s'", key, hwid)
		return true, nil
	}
	return false, nil
}

// ResetHwid сбрасывает привязку ключа, возвращая его в непривязанное состояние.
func (r *postgresKeyRepository) ResetHwid(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE license_keys SET hwid=NULL WHERE key=$1`, key)
	if err != nil {
		log.Printf("[KeyRepo] Ошибка сброса привязки ключа '%s': %v", key, err)
		return fmt.Errorf("ошибка выполнения запроса на сброс привязки: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 0 {
		log.Printf("[KeyRepo] Сброс привязки: ключ '%s' не найден", key)
		return ErrKeyNotFound
	}

	log.Printf("[KeyRepo] Привязка ключа '%s' сброшена", key)
	return nil
}

// TogglePayload инвертирует флаг execute_payload и возвращает новое значение.
func (r *postgresKeyRepository) TogglePayload(ctx context.Context, key string) (bool, error) {
	query := `UPDATE license_keys SET execute_payload = NOT execute_payload
	          WHERE key=$1 RETURNING execute_payload`
	var enabled bool

	err := r.db.QueryRowxContext(ctx, query, key).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[KeyRepo] Переключение payload: ключ '%s' не найден", key)
			return false, ErrKeyNotFound
		}
		log.Printf("[KeyRepo] Ошибка переключения payload для ключа '%s': %v", key, err)
		return false, fmt.Errorf("ошибка выполнения запроса на переключение payload: %w", err)
	}

	log.Printf("[KeyRepo] Флаг execute_payload ключа '%s' теперь %v", key, enabled)
	return enabled, nil
}

// Кастомные ошибки репозитория ключей.
var (
	ErrKeyNotFound = errors.New("лицензионный ключ не найден")
	ErrKeyExists   = errors.New("лицензионный ключ уже существует")
)
