package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/maynagashev/keyserver/internal/repository"
	"github.com/maynagashev/keyserver/internal/storage"
	"github.com/maynagashev/keyserver/models"
)

// UpdateService определяет интерфейс сервиса публикации и раздачи обновлений.
type UpdateService interface {
	GetVersion(ctx context.Context) (*models.VersionInfo, error)
	SetVersion(ctx context.Context, req *models.SetVersionRequest) error
	// DownloadArtifact возвращает поток артефакта и его оригинальное имя файла.
	DownloadArtifact(ctx context.Context) (io.ReadCloser, string, error)
}

// UpdateConfig содержит настраиваемые параметры эвристики целостности артефакта.
// Порог и список суффиксов зависят от типичного размера собираемого бинарника,
// поэтому заданы конфигурацией, а не константой в коде.
type UpdateConfig struct {
	// MinArtifactSize — минимальный правдоподобный размер исполняемого
	// артефакта в байтах; меньший файл с исполняемым суффиксом считается
	// обрезанной/битой загрузкой.
	MinArtifactSize int64
	// ExeSuffixes — суффиксы имен файлов, к которым применяется эвристика.
	ExeSuffixes []string
}

// DefaultUpdateConfig возвращает параметры эвристики по умолчанию.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		MinArtifactSize: 20_000_000,
		ExeSuffixes:     []string{".exe"},
	}
}

const (
	// Путь собственного эндпоинта раздачи: download_url перезаписывается
	// на него всякий раз, когда вместе с версией загружен бинарник.
	artifactDownloadPath = "/update/script"

	// Версия, которую видят клиенты, пока оператор ничего не публиковал.
	defaultVersionNumber = "1.0.0"

	// Имя файла по умолчанию, если оператор не передал filename.
	defaultArtifactName = "update.bin"
)

// Убедимся, что updateService удовлетворяет интерфейсу UpdateService.
var _ UpdateService = (*updateService)(nil)

type updateService struct {
	versionRepo repository.VersionRepository
	fileStorage storage.FileStorage
	cfg         UpdateConfig
}

// NewUpdateService создает новый экземпляр сервиса обновлений.
func NewUpdateService(
	versionRepo repository.VersionRepository,
	fileStorage storage.FileStorage,
	cfg UpdateConfig,
) UpdateService {
	return &updateService{versionRepo: versionRepo, fileStorage: fileStorage, cfg: cfg}
}

// GetVersion возвращает текущую запись о версии. Пока оператор ни разу
// не публиковал версию, клиенты получают захардкоженный дефолт.
func (s *updateService) GetVersion(ctx context.Context) (*models.VersionInfo, error) {
	v, err := s.versionRepo.GetVersion(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotSet) {
			return &models.VersionInfo{VersionNumber: defaultVersionNumber}, nil
		}
		log.Printf("[UpdateService:GetVersion] Ошибка получения записи версии: %v", err)
		return nil, err
	}
	return v, nil
}

// SetVersion валидирует и сохраняет новую запись о версии, при наличии
// бинарника — сохраняет его как артефакт. Замена артефакта выполняется
// как атомарный своп: сначала грузим новый объект под новым ключом, затем
// перенаправляем запись версии на него и только потом удаляем старый объект.
// Конкурентный запрос на скачивание в любой момент видит ровно один артефакт.
func (s *updateService) SetVersion(ctx context.Context, req *models.SetVersionRequest) error {
	if req.VersionNumber == "" {
		return ErrVersionNumberRequired
	}

	var content []byte
	if req.CodeContent != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.CodeContent)
		if err != nil {
			log.Printf("[UpdateService:SetVersion] Нечитаемый base64 в code_content: %v", err)
			return ErrBadArtifactEncoding
		}
		content = decoded
	}

	if len(content) > 0 && s.looksTruncated(req.Filename, int64(len(content))) {
		log.Printf("[UpdateService:SetVersion] Артефакт '%s' отклонен: %d байт меньше порога %d",
			req.Filename, len(content), s.cfg.MinArtifactSize)
		return ErrArtifactTooSmall
	}

	// Текущая запись нужна, чтобы узнать ключ старого артефакта
	// и сохранить ссылку на него, если новый бинарник не прислали.
	var oldArtifactKey *string
	current, err := s.versionRepo.GetVersion(ctx)
	switch {
	case err == nil:
		oldArtifactKey = current.ArtifactKey
	case errors.Is(err, repository.ErrVersionNotSet):
		// Первая публикация
	default:
		log.Printf("[UpdateService:SetVersion] Ошибка чтения текущей версии: %v", err)
		return err
	}

	v := &models.VersionInfo{
		VersionNumber: req.VersionNumber,
		DownloadURL:   req.DownloadURL,
		ReleaseNotes:  req.ReleaseNotes,
		ForceUpdate:   req.ForceUpdate,
	}

	if len(content) > 0 {
		filename := req.Filename
		if filename == "" {
			filename = defaultArtifactName
		}
		objectKey := "artifact/" + uuid.NewString()

		err = s.fileStorage.UploadFile(ctx, objectKey,
			bytes.NewReader(content), int64(len(content)), "application/octet-stream")
		if err != nil {
			log.Printf("[UpdateService:SetVersion] Ошибка загрузки артефакта в хранилище: %v", err)
			return err
		}

		v.ArtifactKey = &objectKey
		v.ArtifactName = &filename
		// Переданный оператором URL игнорируется: раздаем сами.
		v.DownloadURL = artifactDownloadPath
	} else if current != nil {
		// Новый бинарник не прислан — прежний артефакт остается действующим.
		v.ArtifactKey = current.ArtifactKey
		v.ArtifactName = current.ArtifactName
		oldArtifactKey = nil
	}

	if err = s.versionRepo.SetVersion(ctx, v); err != nil {
		log.Printf("[UpdateService:SetVersion] Ошибка сохранения записи версии: %v", err)
		return err
	}

	// Старый объект больше недостижим, удаляем в последнюю очередь.
	// Неудача оставляет лишь осиротевший объект, а не битую запись.
	if oldArtifactKey != nil && *oldArtifactKey != "" {
		if delErr := s.fileStorage.DeleteFile(ctx, *oldArtifactKey); delErr != nil {
			log.Printf("[UpdateService:SetVersion] Не удалось удалить старый артефакт '%s': %v",
				*oldArtifactKey, delErr)
		}
	}

	log.Printf("[UpdateService:SetVersion] Версия '%s' опубликована (артефакт: %v)",
		req.VersionNumber, v.HasArtifact())
	return nil
}

// looksTruncated — эвристика битой загрузки: исполняемый файл подозрительно
// малого размера почти наверняка оборван при передаче. Это грубый фильтр под
// типичный размер нашего артефакта, а не общая проверка целостности.
func (s *updateService) looksTruncated(filename string, size int64) bool {
	name := strings.ToLower(filename)
	for _, suffix := range s.cfg.ExeSuffixes {
		if strings.HasSuffix(name, strings.ToLower(suffix)) {
			return size < s.cfg.MinArtifactSize
		}
	}
	return false
}

// DownloadArtifact возвращает поток единственного сохраненного артефакта
// и его оригинальное имя файла (для Content-Disposition на клиенте).
func (s *updateService) DownloadArtifact(ctx context.Context) (io.ReadCloser, string, error) {
	v, err := s.versionRepo.GetVersion(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotSet) {
			return nil, "", ErrArtifactNotFound
		}
		log.Printf("[UpdateService:DownloadArtifact] Ошибка получения записи версии: %v", err)
		return nil, "", err
	}
	if !v.HasArtifact() {
		return nil, "", ErrArtifactNotFound
	}

	reader, err := s.fileStorage.DownloadFile(ctx, *v.ArtifactKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("[UpdateService:DownloadArtifact] Запись версии ссылается на отсутствующий объект '%s'",
				*v.ArtifactKey)
			return nil, "", ErrArtifactNotFound
		}
		log.Printf("[UpdateService:DownloadArtifact] Ошибка скачивания артефакта '%s': %v", *v.ArtifactKey, err)
		return nil, "", err
	}

	filename := defaultArtifactName
	if v.ArtifactName != nil && *v.ArtifactName != "" {
		filename = *v.ArtifactName
	}
	return reader, filename, nil
}

// Кастомные ошибки сервиса обновлений.
var (
	ErrVersionNumberRequired = errors.New("не указан номер версии")
	ErrBadArtifactEncoding   = errors.New("артефакт закодирован нечитаемым base64")
	ErrArtifactTooSmall      = errors.New("исполняемый артефакт меньше минимального правдоподобного размера")
	ErrArtifactNotFound      = errors.New("артефакт обновления не найден")
)
