package server

import (
	"fmt"
	"os"
	"path/filepath"
)

type DataPaths struct {
	RootDir string
	DBPath  string
}

// InitDataDir creates the data directory. The history database lives at
// <root>/history.db unless dbPath overrides it.
func InitDataDir(root string) (DataPaths, error) {
	paths := DataPaths{
		RootDir: root,
		DBPath:  filepath.Join(root, "history.db"),
	}
	if err := os.MkdirAll(paths.RootDir, 0o750); err != nil {
		return paths, fmt.Errorf("create data directory %s: %w", paths.RootDir, err)
	}
	return paths, nil
}
