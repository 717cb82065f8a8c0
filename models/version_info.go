package models

import "time"

// VersionInfo представляет текущую запись о версии обновления.
// В системе существует не более одной такой записи (и не более одного артефакта).
type VersionInfo struct {
	VersionNumber string    `db:"version_number" json:"version_number"` // Строка версии, формат не навязывается
	DownloadURL   string    `db:"download_url" json:"download_url"`     // Откуда клиенту скачивать обновление
	ReleaseNotes  string    `db:"release_notes" json:"release_notes"`
	ForceUpdate   bool      `db:"force_update" json:"force_update"` // Рекомендательный флаг для клиента
	ArtifactKey   *string   `db:"artifact_key" json:"-"`            // Ключ объекта артефакта в MinIO, NULL — артефакта нет
	ArtifactName  *string   `db:"artifact_name" json:"-"`           // Оригинальное имя файла артефакта
	ReleasedAt    time.Time `db:"released_at" json:"released_at"`
}

// HasArtifact сообщает, есть ли у текущей версии сохраненный бинарный артефакт.
func (v *VersionInfo) HasArtifact() bool {
	return v.ArtifactKey != nil && *v.ArtifactKey != ""
}
