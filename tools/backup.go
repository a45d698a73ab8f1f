package tools

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// backupDirName mirrors FileBackup.BACKUP_DIR_NAME.
const backupDirName = "file_backups"

// backupDir returns baseDir/.flavia/file_backups.
func backupDir(baseDir string) string {
	return filepath.Join(baseDir, ".flavia", backupDirName)
}

// backupFile copies filePath into the mirrored backup tree before a
// destructive write, matching FileBackup.backup. Any failure (missing
// source, permission error, disk full) is swallowed: a backup that can't be
// taken must never block the write it is protecting.
func backupFile(filePath, baseDir string) (string, bool) {
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return "", false
	}

	rel, err := filepath.Rel(baseDir, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(filePath)
	}

	dstDir := filepath.Join(backupDir(baseDir), filepath.Dir(rel))
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", false
	}

	stamp := time.Now().Format("20060102_150405_000000")
	name := filepath.Base(filePath)
	dst := filepath.Join(dstDir, fmt.Sprintf("%s.%s.bak", name, stamp))
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(dstDir, fmt.Sprintf("%s.%s_%d.bak", name, stamp, i))
	}

	if err := copyFile(filePath, dst); err != nil {
		return "", false
	}
	return dst, true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// cleanupOldBackups removes .bak files older than maxAgeDays and any
// directories left empty by that removal, matching
// FileBackup.cleanup_old_backups. It returns the number of files removed.
func cleanupOldBackups(baseDir string, maxAgeDays int) int {
	root := backupDir(baseDir)
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	removed := 0
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".bak") {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})

	removeEmptyDirs(root)
	return removed
}

func removeEmptyDirs(root string) {
	var dirs []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info != nil && info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			os.Remove(dirs[i])
		}
	}
}
