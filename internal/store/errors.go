package store

import (
	"fmt"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// StorageWriteError is returned by Mutate when the backend refused a write.
// Nothing was committed; the caller may retry.
type StorageWriteError struct {
	Key domain.DocumentKey
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage %s of %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// CorruptDocumentError describes a document whose primary and backups all
// failed to decode. The store logs it and continues with an empty document.
type CorruptDocumentError struct {
	Key     domain.DocumentKey
	Backups int
	Err     error
}

func (e *CorruptDocumentError) Error() string {
	return fmt.Sprintf("document %s is corrupt and none of %d backups decoded: %v", e.Key, e.Backups, e.Err)
}

func (e *CorruptDocumentError) Unwrap() error { return e.Err }
