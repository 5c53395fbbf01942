package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the files SQLite keeps next to a WAL-mode database.
var sqliteSidecars = []string{"", "-wal", "-shm"}

// DiskUsage returns the bytes used by the database at dbPath (including its WAL and
// shared-memory files) and the index directory at indexPath. Missing paths count as 0.
func DiskUsage(dbPath, indexPath string) (int64, error) {
	var total int64
	if dbPath != "" {
		for _, suffix := range sqliteSidecars {
			n, err := pathSize(dbPath + suffix)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	if indexPath != "" {
		n, err := pathSize(indexPath)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
