package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig holds configuration for log rotation
type RotationConfig struct {
	// Filename is the file to write logs to
	Filename string

	// MaxSize is the maximum size in megabytes before rotation (0 = no size limit)
	MaxSize int64

	// MaxAge is the maximum age in days before rotation (0 = no age limit)
	MaxAge int

	// MaxBackups is the maximum number of old log files to retain (0 = retain all)
	MaxBackups int

	// Compress determines if rotated log files should be compressed
	Compress bool

	// LocalTime determines if backup timestamps use local time
	LocalTime bool
}

// LogRotator is an io.Writer that rotates the underlying file by size and
// age, with optional gzip compression and bounded backup retention.
type LogRotator struct {
	mu sync.Mutex

	config   *RotationConfig
	file     *os.File
	size     int64
	openTime time.Time
}

// NewLogRotator creates a new log rotator
func NewLogRotator(config *RotationConfig) (*LogRotator, error) {
	if config == nil {
		return nil, fmt.Errorf("rotation config is required")
	}
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	lr := &LogRotator{config: config}
	if err := lr.openFile(); err != nil {
		return nil, err
	}
	return lr, nil
}

// Write implements io.Writer
func (lr *LogRotator) Write(p []byte) (n int, err error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.shouldRotate(int64(len(p))) {
		if err := lr.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err = lr.file.Write(p)
	lr.size += int64(n)
	return n, err
}

// Close closes the log file
func (lr *LogRotator) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return nil
	}
	err := lr.file.Close()
	lr.file = nil
	return err
}

// Sync flushes the log file
func (lr *LogRotator) Sync() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return nil
	}
	return lr.file.Sync()
}

func (lr *LogRotator) shouldRotate(writeSize int64) bool {
	if lr.config.MaxSize > 0 && lr.size+writeSize >= lr.config.MaxSize*1024*1024 {
		return true
	}
	if lr.config.MaxAge > 0 {
		maxAge := time.Duration(lr.config.MaxAge) * 24 * time.Hour
		if time.Since(lr.openTime) >= maxAge {
			return true
		}
	}
	return false
}

// rotate closes the current file, moves it aside under a timestamped name,
// applies compression and retention, and reopens the live file. Caller holds
// the lock.
func (lr *LogRotator) rotate() error {
	if lr.file != nil {
		if err := lr.file.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		lr.file = nil
	}

	backupName := lr.backupFilename(lr.backupTimestamp())
	if err := os.Rename(lr.config.Filename, backupName); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	// Compression and retention failures must not lose the live stream, so
	// they are reported to stderr rather than failing the rotation.
	if lr.config.Compress {
		if err := lr.compressFile(backupName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to compress log file %s: %v\n", backupName, err)
		}
	}
	if err := lr.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to clean up old backups: %v\n", err)
	}

	return lr.openFile()
}

func (lr *LogRotator) openFile() error {
	if err := os.MkdirAll(filepath.Dir(lr.config.Filename), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(lr.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	lr.file = file
	lr.size = info.Size()
	lr.openTime = time.Now()
	return nil
}

func (lr *LogRotator) backupTimestamp() time.Time {
	if lr.config.LocalTime {
		return time.Now()
	}
	return time.Now().UTC()
}

func (lr *LogRotator) backupFilename(timestamp time.Time) string {
	dir := filepath.Dir(lr.config.Filename)
	filename := filepath.Base(lr.config.Filename)
	ext := filepath.Ext(filename)
	prefix := strings.TrimSuffix(filename, ext)

	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", prefix, timestamp.Format("2006-01-02T15-04-05"), ext))
}

// compressFile gzips filename into filename.gz and removes the original
func (lr *LogRotator) compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer func() { _ = dst.Close() }()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		_ = gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(filename)
}

// cleanupOldBackups enforces MaxBackups and MaxAge over the backup set
func (lr *LogRotator) cleanupOldBackups() error {
	backups, err := lr.backupFiles()
	if err != nil {
		return err
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModTime().Before(backups[j].ModTime())
	})

	var toDelete []string

	if lr.config.MaxBackups > 0 && len(backups) > lr.config.MaxBackups {
		excess := len(backups) - lr.config.MaxBackups
		for _, backup := range backups[:excess] {
			toDelete = append(toDelete, backup.Name())
		}
		backups = backups[excess:]
	}

	if lr.config.MaxAge > 0 {
		cutoff := time.Now().Add(-time.Duration(lr.config.MaxAge) * 24 * time.Hour)
		for _, backup := range backups {
			if backup.ModTime().Before(cutoff) {
				toDelete = append(toDelete, backup.Name())
			}
		}
	}

	dir := filepath.Dir(lr.config.Filename)
	for _, name := range toDelete {
		fullPath := filepath.Join(dir, name)
		if err := os.Remove(fullPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old backup %s: %v\n", fullPath, err)
		}
	}

	return nil
}

// backupFiles lists rotated siblings of the live log file, compressed or not
func (lr *LogRotator) backupFiles() ([]os.FileInfo, error) {
	dir := filepath.Dir(lr.config.Filename)
	filename := filepath.Base(lr.config.Filename)
	ext := filepath.Ext(filename)
	prefix := strings.TrimSuffix(filename, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var backups []os.FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if name == filename || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if !strings.HasSuffix(name, ext) && !strings.HasSuffix(name, ext+".gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, info)
	}

	return backups, nil
}

// ForceRotate forces an immediate rotation
func (lr *LogRotator) ForceRotate() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.rotate()
}
