package redis

import (
	"fmt"
	"strings"
)

const (
	// KeyPrefixDocument is the prefix for committed documents
	KeyPrefixDocument = "promo:doc:"
	// KeyPrefixBackup is the prefix for backup payloads
	KeyPrefixBackup = "promo:backup:"
	// KeyPrefixBackupIndex is the prefix for the per-document backup index
	KeyPrefixBackupIndex = "promo:backups:"
	// KeyPing is written by Ping to check the server accepts writes
	KeyPing = "promo:ping"
)

// DocumentKey returns the Redis key holding a document
func DocumentKey(key string) string {
	return KeyPrefixDocument + key
}

// BackupKey returns the Redis key holding one backup payload
func BackupKey(key, id string) string {
	return KeyPrefixBackup + key + ":" + id
}

// BackupIndexKey returns the sorted set indexing the backups of a document by time
func BackupIndexKey(key string) string {
	return KeyPrefixBackupIndex + key
}

// ExtractBackupID extracts the backup ID from a backup key
func ExtractBackupID(key, redisKey string) (string, error) {
	prefix := KeyPrefixBackup + key + ":"
	if len(redisKey) <= len(prefix) || !strings.HasPrefix(redisKey, prefix) {
		return "", fmt.Errorf("invalid backup key: %s", redisKey)
	}
	return redisKey[len(prefix):], nil
}
