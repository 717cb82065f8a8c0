package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// Порт по умолчанию для HTTP.
	defaultServerPort = "8080"

	// Параметры эвристики целостности артефакта по умолчанию.
	// Порог подобран под типичный размер собираемого бинарника.
	defaultArtifactMinSize  = 20_000_000
	defaultArtifactSuffixes = ".exe"

	// Значения MinIO по умолчанию (из docker-compose).
	defaultMinioEndpoint = "localhost:9000"
	defaultMinioUser     = "minioadmin"
	defaultMinioPassword = "minioadmin"
	defaultMinioBucket   = "keyserver-artifacts"

	// Переменные окружения.
	envServerPort       = "SERVER_PORT"
	envTLSCertFile      = "TLS_CERT_FILE"
	envTLSKeyFile       = "TLS_KEY_FILE"
	envDatabaseDSN      = "DATABASE_DSN"
	envMinioEndpoint    = "MINIO_ENDPOINT"
	envMinioUser        = "MINIO_USER"
	envMinioPassword    = "MINIO_PASSWORD" //nolint:gosec // Ложное срабатывание, это имя переменной окружения
	envMinioBucket      = "MINIO_BUCKET"
	envMinioUseSSL      = "MINIO_USE_SSL"
	envArtifactMinSize  = "ARTIFACT_MIN_SIZE"
	envArtifactSuffixes = "ARTIFACT_EXE_SUFFIXES"
	envLegacyDBFile     = "LEGACY_DB_FILE"
)

// config хранит конфигурацию сервера.
type config struct {
	Port             string
	CertFile         string // Пути к TLS-файлам опциональны: без них сервер работает по HTTP
	KeyFile          string
	DatabaseDSN      string
	MinioEndpoint    string
	MinioUser        string
	MinioPassword    string
	MinioBucket      string
	MinioUseSSL      bool
	ArtifactMinSize  int64
	ArtifactSuffixes string // Список суффиксов через запятую
	LegacyDBFile     string // Путь к старому licenses.json для разового импорта
}

// ExeSuffixList возвращает список исполняемых суффиксов из конфигурации.
func (c *config) ExeSuffixList() []string {
	parts := strings.Split(c.ArtifactSuffixes, ",")
	suffixes := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return suffixes
}

// parseFlags разбирает флаги и переменные окружения, возвращает config или ошибку.
// Приоритет: флаг, затем переменная окружения, затем значение по умолчанию.
func parseFlags() (*config, error) {
	cfg := &config{}

	flag.StringVar(&cfg.Port, "port", "",
		fmt.Sprintf("Порт для запуска сервера (env: %s, default: %s)", envServerPort, defaultServerPort))
	flag.StringVar(&cfg.CertFile, "cert-file", "",
		fmt.Sprintf("Путь к файлу TLS-сертификата, опционально (env: %s)", envTLSCertFile))
	flag.StringVar(&cfg.KeyFile, "key-file", "",
		fmt.Sprintf("Путь к файлу TLS-ключа, опционально (env: %s)", envTLSKeyFile))
	flag.StringVar(&cfg.DatabaseDSN, "database-dsn", "",
		fmt.Sprintf("Строка подключения к базе данных (env: %s)", envDatabaseDSN))
	flag.StringVar(&cfg.MinioEndpoint, "minio-endpoint", "",
		fmt.Sprintf("Адрес MinIO (env: %s, default: %s)", envMinioEndpoint, defaultMinioEndpoint))
	flag.StringVar(&cfg.MinioUser, "minio-user", "",
		fmt.Sprintf("Логин MinIO (env: %s)", envMinioUser))
	flag.StringVar(&cfg.MinioPassword, "minio-password", "",
		fmt.Sprintf("Пароль MinIO (env: %s)", envMinioPassword))
	flag.StringVar(&cfg.MinioBucket, "minio-bucket", "",
		fmt.Sprintf("Бакет MinIO для артефактов (env: %s, default: %s)", envMinioBucket, defaultMinioBucket))
	flag.BoolVar(&cfg.MinioUseSSL, "minio-ssl", false,
		fmt.Sprintf("Использовать SSL при подключении к MinIO (env: %s)", envMinioUseSSL))
	flag.Int64Var(&cfg.ArtifactMinSize, "artifact-min-size", 0,
		fmt.Sprintf("Минимальный правдоподобный размер исполняемого артефакта в байтах (env: %s, default: %d)",
			envArtifactMinSize, defaultArtifactMinSize))
	flag.StringVar(&cfg.ArtifactSuffixes, "artifact-exe-suffixes", "",
		fmt.Sprintf("Суффиксы исполняемых файлов через запятую (env: %s, default: %s)",
			envArtifactSuffixes, defaultArtifactSuffixes))
	flag.StringVar(&cfg.LegacyDBFile, "legacy-db", "",
		fmt.Sprintf("Путь к старому licenses.json для разового импорта (env: %s)", envLegacyDBFile))

	flag.Parse()

	// Применяем переменные окружения, если флаги не заданы
	applyStringEnv(&cfg.Port, envServerPort, defaultServerPort)
	applyStringEnv(&cfg.CertFile, envTLSCertFile, "")
	applyStringEnv(&cfg.KeyFile, envTLSKeyFile, "")
	applyStringEnv(&cfg.DatabaseDSN, envDatabaseDSN, "")
	applyStringEnv(&cfg.MinioEndpoint, envMinioEndpoint, defaultMinioEndpoint)
	applyStringEnv(&cfg.MinioUser, envMinioUser, defaultMinioUser)
	applyStringEnv(&cfg.MinioPassword, envMinioPassword, defaultMinioPassword)
	applyStringEnv(&cfg.MinioBucket, envMinioBucket, defaultMinioBucket)
	applyStringEnv(&cfg.ArtifactSuffixes, envArtifactSuffixes, defaultArtifactSuffixes)
	applyStringEnv(&cfg.LegacyDBFile, envLegacyDBFile, "")

	if !cfg.MinioUseSSL {
		if value, ok := os.LookupEnv(envMinioUseSSL); ok {
			useSSL, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("неверное значение %s: %w", envMinioUseSSL, err)
			}
			cfg.MinioUseSSL = useSSL
		}
	}

	if cfg.ArtifactMinSize == 0 {
		if value, ok := os.LookupEnv(envArtifactMinSize); ok {
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("неверное значение %s: %w", envArtifactMinSize, err)
			}
			cfg.ArtifactMinSize = size
		} else {
			cfg.ArtifactMinSize = defaultArtifactMinSize
		}
	}

	// Проверяем обязательные параметры
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("не указана строка подключения к БД (--database-dsn или " + envDatabaseDSN + ")")
	}
	// TLS включается только парой файлов
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("для TLS нужны оба файла: и сертификат, и ключ")
	}

	return cfg, nil
}

// applyStringEnv подставляет переменную окружения или значение по умолчанию,
// если флаг не был задан.
func applyStringEnv(target *string, envKey, fallback string) {
	if *target != "" {
		return
	}
	if value, ok := os.LookupEnv(envKey); ok {
		*target = value
		return
	}
	*target = fallback
}
