package model

import "time"

// Blob describes a file kept in the blob store. The bytes live on disk under ID.
type Blob struct {
	ID          string `gorm:"primaryKey;size:36"`
	OwnerID     string `gorm:"size:36;not null;index"`
	ContentType string `gorm:"size:127"`
	Size        int64
	CreatedAt   time.Time `gorm:"index"`
}

// UploadGrant lets the holder of Token upload exactly one file before ExpiresAt.
type UploadGrant struct {
	Token     string    `gorm:"primaryKey;size:36"`
	OwnerID   string    `gorm:"size:36;not null;index"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
