// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data next to path in a temp file, fsyncs it and
// renames it over path, so readers see either the old or the new content.
// Missing parent directories are created with 0700.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	wrap := func(step string, err error) error {
		return fmt.Errorf("atomic write %s: %s: %w", absPath, step, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return wrap("mkdir", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return wrap("create temp", err)
	}
	tempPath := f.Name()

	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return wrap("write", err)
	}
	if err := f.Sync(); err != nil {
		return wrap("sync", err)
	}
	if err := f.Close(); err != nil {
		return wrap("close", err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		return wrap("chmod", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		return wrap("rename", err)
	}

	committed = true
	return nil
}
