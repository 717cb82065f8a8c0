package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/maynagashev/keyserver/models"
)

// Исторически база жила в одном JSON-файле и пережила три формата:
//  1. плоская карта ключ -> запись;
//  2. {"keys": {...}, "global_payload": ""};
//  3. то же + "version": {...}.
// Миграция выполняется явно и один раз — при старте сервера с флагом -legacy-db,
// а не размазанным по коду угадыванием формата.

// legacyKey представляет запись ключа в старом JSON-файле.
type legacyKey struct {
	Expiry         string          `json:"expiry"`
	Hwid           *string         `json:"hwid"`
	HwidLimit      json.RawMessage `json:"hwid_limit"`
	ExecutePayload *bool           `json:"execute_payload"`
}

// legacyVersion представляет запись о версии в старом JSON-файле.
type legacyVersion struct {
	VersionNumber string `json:"version_number"`
	DownloadURL   string `json:"download_url"`
	ReleaseNotes  string `json:"release_notes"`
	ForceUpdate   bool   `json:"force_update"`
}

// legacyDatabase — старый файл, приведенный к последнему формату.
type legacyDatabase struct {
	Keys          map[string]legacyKey `json:"keys"`
	GlobalPayload string               `json:"global_payload"`
	Version       *legacyVersion       `json:"version"`
}

// parseLegacyDatabase разбирает содержимое старого JSON-файла,
// поднимая любой из трех исторических форматов до последнего.
func parseLegacyDatabase(data []byte) (*legacyDatabase, error) {
	var db legacyDatabase
	if err := json.Unmarshal(data, &db); err == nil && db.Keys != nil {
		return &db, nil
	}

	// Самый старый формат: плоская карта ключ -> запись, без обертки "keys".
	var flat map[string]legacyKey
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("нераспознанный формат legacy-файла: %w", err)
	}
	return &legacyDatabase{Keys: flat}, nil
}

// ImportLegacyFile переносит содержимое старого JSON-файла в PostgreSQL.
// Уже существующие ключи не перезаписываются; запись о версии переносится,
// только если текущая еще не создана. Возвращает число импортированных ключей.
func ImportLegacyFile(
	ctx context.Context,
	path string,
	keys KeyRepository,
	versions VersionRepository,
) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения legacy-файла '%s': %w", path, err)
	}

	db, err := parseLegacyDatabase(data)
	if err != nil {
		return 0, err
	}

	imported := 0
	for key, lk := range db.Keys {
		expiry := lk.Expiry
		if expiry == "" {
			expiry = models.ExpiryLifetime
		}
		executePayload := true
		if lk.ExecutePayload != nil {
			executePayload = *lk.ExecutePayload
		}

		record := &models.LicenseKey{
			Key:            key,
			Expiry:         expiry,
			HwidLimit:      models.NormalizeHwidLimit(lk.HwidLimit),
			ExecutePayload: executePayload,
		}
		if err = keys.CreateKey(ctx, record); err != nil {
			if errors.Is(err, ErrKeyExists) {
				log.Printf("[LegacyImport] Ключ '%s' уже есть в БД, пропускаем", key)
				continue
			}
			return imported, fmt.Errorf("ошибка импорта ключа '%s': %w", key, err)
		}
		// Привязка переносится отдельным шагом: CreateKey всегда создает
		// непривязанный ключ, а BindHwid сохраняет ее атомарно.
		if lk.Hwid != nil && *lk.Hwid != "" {
			if _, err = keys.BindHwid(ctx, key, *lk.Hwid); err != nil {
				return imported, fmt.Errorf("ошибка переноса привязки ключа '%s': %w", key, err)
			}
		}
		imported++
	}

	if db.GlobalPayload != "" {
		if err = versions.SetGlobalPayload(ctx, db.GlobalPayload); err != nil {
			return imported, fmt.Errorf("ошибка переноса глобального payload: %w", err)
		}
	}

	if db.Version != nil {
		_, err = versions.GetVersion(ctx)
		switch {
		case errors.Is(err, ErrVersionNotSet):
			v := &models.VersionInfo{
				VersionNumber: db.Version.VersionNumber,
				DownloadURL:   db.Version.DownloadURL,
				ReleaseNotes:  db.Version.ReleaseNotes,
				ForceUpdate:   db.Version.ForceUpdate,
			}
			if err = versions.SetVersion(ctx, v); err != nil {
				return imported, fmt.Errorf("ошибка переноса записи о версии: %w", err)
			}
		case err != nil:
			return imported, fmt.Errorf("ошибка проверки текущей версии при импорте: %w", err)
		default:
			log.Printf("[LegacyImport] Запись о версии уже существует, перенос из файла пропущен")
		}
	}

	log.Printf("[LegacyImport] Импорт из '%s' завершен: %d ключей", path, imported)
	return imported, nil
}
