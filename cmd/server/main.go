package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL
	"github.com/maynagashev/keyserver/internal/handlers"
	"github.com/maynagashev/keyserver/internal/repository"
	"github.com/maynagashev/keyserver/internal/services"
	"github.com/maynagashev/keyserver/internal/storage"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 30 * time.Second
)

// Вынесено в переменную для подмены в тестах.
var newPostgresDB = repository.NewPostgresDB

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db             *sqlx.DB
	fileStorage    storage.FileStorage // Используем интерфейс
	licenseHandler *handlers.LicenseHandler
	adminHandler   *handlers.AdminHandler
	updateHandler  *handlers.UpdateHandler
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	if err := run(); err != nil {
		log.Printf("Ошибка выполнения сервера: %v", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run() error {
	log.Println("Запуск сервера лицензий...")

	cfg, err := parseFlags()
	if err != nil {
		return fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	// Инициализация зависимостей
	deps, err := setupDependencies(cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	// Отложенное закрытие соединения с БД
	defer func() {
		if deps.db != nil {
			if closeErr := deps.db.Close(); closeErr != nil {
				log.Printf("Ошибка закрытия соединения с БД: %v", closeErr)
			}
		}
	}()

	// Настройка роутера
	r := setupRouter(deps.licenseHandler, deps.adminHandler, deps.updateHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	// TLS включается, только если заданы оба файла
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		log.Printf("Запуск HTTPS-сервера на порту %s...", cfg.Port)
		err = server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		log.Printf("Запуск HTTP-сервера на порту %s...", cfg.Port)
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка запуска сервера: %w", err)
	}
	return nil
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
func setupDependencies(cfg *config) (*dependencies, error) {
	deps := &dependencies{}
	var err error

	// 1. Подключение к БД
	deps.db, err = newPostgresDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}

	ctx := context.Background()
	if err = repository.EnsureSchema(ctx, deps.db); err != nil {
		closeDB(deps.db)
		return nil, err
	}

	// 2. Инициализация клиента MinIO
	minioCfg := storage.MinioConfig{
		Endpoint:        cfg.MinioEndpoint,
		AccessKeyID:     cfg.MinioUser,
		SecretAccessKey: cfg.MinioPassword,
		UseSSL:          cfg.MinioUseSSL,
		BucketName:      cfg.MinioBucket,
	}
	deps.fileStorage, err = storage.NewMinioClient(minioCfg)
	if err != nil {
		closeDB(deps.db)
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	// 3. Создание репозиториев
	keyRepo := repository.NewPostgresKeyRepository(deps.db)
	versionRepo := repository.NewPostgresVersionRepository(deps.db)

	// 4. Разовый импорт старого JSON-файла, если указан
	if cfg.LegacyDBFile != "" {
		imported, importErr := repository.ImportLegacyFile(ctx, cfg.LegacyDBFile, keyRepo, versionRepo)
		if importErr != nil {
			closeDB(deps.db)
			return nil, fmt.Errorf("ошибка импорта legacy-файла: %w", importErr)
		}
		log.Printf("Импортировано %d ключей из '%s'", imported, cfg.LegacyDBFile)
	}

	// 5. Создание сервисов
	licenseService := services.NewLicenseService(keyRepo, versionRepo)
	updateService := services.NewUpdateService(versionRepo, deps.fileStorage, services.UpdateConfig{
		MinArtifactSize: cfg.ArtifactMinSize,
		ExeSuffixes:     cfg.ExeSuffixList(),
	})

	// 6. Создание обработчиков
	deps.licenseHandler = handlers.NewLicenseHandler(licenseService)
	deps.adminHandler = handlers.NewAdminHandler(licenseService)
	deps.updateHandler = handlers.NewUpdateHandler(updateService)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(
	licenseHandler *handlers.LicenseHandler,
	adminHandler *handlers.AdminHandler,
	updateHandler *handlers.UpdateHandler,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- Маршруты --- //
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	// Клиентские маршруты
	r.Post("/verify", licenseHandler.Verify)
	r.Get("/version", updateHandler.GetVersion)
	r.Get("/update/script", updateHandler.DownloadArtifact)

	// Административные маршруты.
	// Аутентификации нет намеренно: контур считается доверенным.
	r.Route("/admin", func(r chi.Router) {
		r.Post("/add_key", adminHandler.AddKey)
		r.Post("/delete_key", adminHandler.DeleteKey)
		r.Post("/reset_hwid", adminHandler.ResetHwid)
		r.Post("/toggle_payload", adminHandler.TogglePayload)
		r.Get("/list_keys", adminHandler.ListKeys)
		r.Post("/set_payload", adminHandler.SetPayload)
		r.Get("/get_payload", adminHandler.GetPayload)
		r.Post("/set_version", updateHandler.SetVersion)
	})

	return r
}

// closeDB закрывает соединение с БД при ошибке инициализации других зависимостей.
func closeDB(db *sqlx.DB) {
	if closeErr := db.Close(); closeErr != nil {
		log.Printf("Ошибка закрытия соединения с БД: %v", closeErr)
	}
}
