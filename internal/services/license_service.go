package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/maynagashev/keyserver/internal/repository"
	"github.com/maynagashev/keyserver/models"
)

// LicenseService определяет интерфейс сервиса проверки и администрирования
// лицензионных ключей.
type LicenseService interface {
	Verify(ctx context.Context, key, hwid string) (*models.VerifyResponse, error)
	AddKey(ctx context.Context, key, expiry, hwidLimit string, executePayload bool) error
	DeleteKey(ctx context.Context, key string) error
	ResetHwid(ctx context.Context, key string) error
	TogglePayload(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) (map[string]models.KeySummary, error)
	GetGlobalPayload(ctx context.Context) (string, error)
	SetGlobalPayload(ctx context.Context, payload string) error
}

// Форматы дат, которые исторически встречаются в поле expiry.
// Старые админ-скрипты писали ISO-8601 без зоны, иногда только дату.
var expiryFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Убедимся, что licenseService удовлетворяет интерфейсу LicenseService.
var _ LicenseService = (*licenseService)(nil)

type licenseService struct {
	keyRepo     repository.KeyRepository
	versionRepo repository.VersionRepository // Глобальный payload живет рядом с записью версии
}

// NewLicenseService создает новый экземпляр сервиса лицензий.
func NewLicenseService(keyRepo repository.KeyRepository, versionRepo repository.VersionRepository) LicenseService {
	return &licenseService{keyRepo: keyRepo, versionRepo: versionRepo}
}

// Verify проверяет ключ для указанного устройства и при первом обращении
// привязывает ключ к нему. Пустой hwid допустим и трактуется как обычный
// идентификатор устройства.
func (s *licenseService) Verify(ctx context.Context, key, hwid string) (*models.VerifyResponse, error) {
	lk, err := s.keyRepo.GetKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		log.Printf("[LicenseService:Verify] Ошибка репозитория при поиске ключа '%s': %v", key, err)
		return nil, err
	}

	// Срок действия проверяется до привязки: истекший ключ отклоняется
	// независимо от состояния привязки.
	if keyExpired(lk.Expiry, time.Now()) {
		log.Printf("[LicenseService:Verify] Ключ '%s' истек (expiry=%s)", key, lk.Expiry)
		return nil, ErrKeyExpired
	}

	boundHwid, err := s.checkBinding(ctx, lk, hwid)
	if err != nil {
		return nil, err
	}

	payload, err := s.versionRepo.GetGlobalPayload(ctx)
	if err != nil {
		log.Printf("[LicenseService:Verify] Ошибка получения глобального payload: %v", err)
		return nil, err
	}

	executePayload := lk.ExecutePayload
	return &models.VerifyResponse{
		Valid:          true,
		Expiry:         lk.Expiry,
		Hwid:           boundHwid,
		GlobalPayload:  payload,
		ExecutePayload: &executePayload,
	}, nil
}

// checkBinding выполняет проверку привязки ключа к устройству и при
// необходимости — первичную привязку. Возвращает актуальную привязку
// (или литерал "unlimited", если привязка не проверяется).
func (s *licenseService) checkBinding(ctx context.Context, lk *models.LicenseKey, hwid string) (string, error) {
	if lk.Unenforced() {
		return models.HwidLimitUnlimited, nil
	}

	if lk.Bound() {
		if *lk.Hwid != hwid {
			log.Printf("[LicenseService:Verify] Ключ '%s' привязан к другому устройству", lk.Key)
			return "", ErrHwidMismatch
		}
		return hwid, nil
	}

	// Первое обращение: привязываем атомарным условным UPDATE.
	claimed, err := s.keyRepo.BindHwid(ctx, lk.Key, hwid)
	if err != nil {
		log.Printf("[LicenseService:Verify] Ошибка привязки ключа '%s': %v", lk.Key, err)
		return "", err
	}
	if claimed {
		log.Printf("[LicenseService:Verify] Ключ '%s' привязан к устройству при первом обращении", lk.Key)
		return hwid, nil
	}

	// Гонка проиграна: кто-то привязал ключ между чтением и UPDATE.
	// Перечитываем запись и сравниваем — совпавшее устройство все равно проходит.
	fresh, err := s.keyRepo.GetKey(ctx, lk.Key)
	if err != nil {
		log.Printf("[LicenseService:Verify] Ошибка перечитывания ключа '%s' после гонки: %v", lk.Key, err)
		return "", err
	}
	if fresh.Bound() && *fresh.Hwid != hwid {
		log.Printf("[LicenseService:Verify] Ключ '%s' привязан конкурентным запросом к другому устройству", lk.Key)
		return "", ErrHwidMismatch
	}
	return hwid, nil
}

// keyExpired реализует политику «снисходительность к нечитаемым датам»:
// если expiry не "lifetime" и не разбирается ни одним известным форматом,
// ключ считается НЕ истекшим. Это осознанное поведение, а не проглоченная
// ошибка: в проде живут ключи с кривыми датами, и они обязаны продолжать
// проходить проверку.
func keyExpired(expiry string, now time.Time) bool {
	if expiry == models.ExpiryLifetime {
		return false
	}

	for _, format := range expiryFormats {
		if exp, err := time.Parse(format, expiry); err == nil {
			return now.After(exp)
		}
	}

	log.Printf("[LicenseService] Нечитаемый формат expiry '%s', ключ считается действующим", expiry)
	return false
}

// AddKey создает новый ключ. Формат expiry при создании не проверяется —
// проверка отложена до Verify, где нечитаемые даты трактуются снисходительно.
func (s *licenseService) AddKey(ctx context.Context, key, expiry, hwidLimit string, executePayload bool) error {
	if expiry == "" {
		expiry = models.ExpiryLifetime
	}
	if hwidLimit == "" {
		hwidLimit = models.HwidLimitSingle
	}

	lk := &models.LicenseKey{
		Key:            key,
		Expiry:         expiry,
		HwidLimit:      hwidLimit,
		ExecutePayload: executePayload,
	}
	err := s.keyRepo.CreateKey(ctx, lk)
	if err != nil {
		if errors.Is(err, repository.ErrKeyExists) {
			return ErrKeyExists
		}
		log.Printf("[LicenseService:AddKey] Ошибка создания ключа '%s': %v", key, err)
		return err
	}
	return nil
}

// DeleteKey удаляет ключ.
func (s *licenseService) DeleteKey(ctx context.Context, key string) error {
	err := s.keyRepo.DeleteKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		log.Printf("[LicenseService:DeleteKey] Ошибка удаления ключа '%s': %v", key, err)
		return err
	}
	return nil
}

// ResetHwid сбрасывает привязку ключа: следующий Verify с любого устройства
// привяжет ключ заново.
func (s *licenseService) ResetHwid(ctx context.Context, key string) error {
	err := s.keyRepo.ResetHwid(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		log.Printf("[LicenseService:ResetHwid] Ошибка сброса привязки ключа '%s': %v", key, err)
		return err
	}
	return nil
}

// TogglePayload инвертирует флаг execute_payload ключа и возвращает новое значение.
func (s *licenseService) TogglePayload(ctx context.Context, key string) (bool, error) {
	enabled, err := s.keyRepo.TogglePayload(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return false, ErrKeyNotFound
		}
		log.Printf("[LicenseService:TogglePayload] Ошибка переключения payload для '%s': %v", key, err)
		return false, err
	}
	return enabled, nil
}

// ListKeys возвращает все ключи в виде карты ключ -> сводка.
func (s *licenseService) ListKeys(ctx context.Context) (map[string]models.KeySummary, error) {
	keys, err := s.keyRepo.ListKeys(ctx)
	if err != nil {
		log.Printf("[LicenseService:ListKeys] Ошибка получения списка ключей: %v", err)
		return nil, err
	}

	result := make(map[string]models.KeySummary, len(keys))
	for _, lk := range keys {
		result[lk.Key] = models.KeySummary{
			Expiry:         lk.Expiry,
			Hwid:           lk.Hwid,
			HwidLimit:      lk.HwidLimit,
			ExecutePayload: lk.ExecutePayload,
		}
	}
	return result, nil
}

// GetGlobalPayload возвращает глобальный payload.
func (s *licenseService) GetGlobalPayload(ctx context.Context) (string, error) {
	return s.versionRepo.GetGlobalPayload(ctx)
}

// SetGlobalPayload сохраняет глобальный payload.
func (s *licenseService) SetGlobalPayload(ctx context.Context, payload string) error {
	return s.versionRepo.SetGlobalPayload(ctx, payload)
}

// Кастомные ошибки сервиса лицензий.
var (
	ErrInvalidKey   = errors.New("лицензионный ключ не существует")
	ErrKeyExpired   = errors.New("срок действия ключа истек")
	ErrHwidMismatch = errors.New("ключ привязан к другому устройству")
	ErrKeyExists    = errors.New("лицензионный ключ уже существует")
	ErrKeyNotFound  = errors.New("лицензионный ключ не найден")
)
