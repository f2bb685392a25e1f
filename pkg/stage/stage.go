// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stage manages the local staging tree that mirrors the eventual
// remote layout 1:1, so a staged subtree can be deep-uploaded unmodified.
package stage

import (
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/tozd/go/errors"
)

// 💾 FS is the filesystem surface the orchestrators depend on. It exists so
// download/upload logic can be tested without touching a real disk.
type FS interface {
	WriteFileAtomic(path string, content []byte) error
	ReadFile(path string) ([]byte, error)
	FileExists(path string) (bool, error)
	FileSize(path string) (int64, error)
	CreateDir(path string) error
	RemoveDir(path string) error

	// ListDir returns the immediate subdirectories and files of path,
	// both relative to the manager's root, sorted by name.
	ListDir(path string) (dirs []string, files []string, err error)

	// Abs resolves a root-relative path to an absolute one.
	Abs(path string) string
}

// 🔧 Manager implements FS over a real directory tree.
type Manager struct {
	baseDir string
}

// 🏭 New creates a staging manager rooted at baseDir.
func New(baseDir string) *Manager {
	return &Manager{baseDir: filepath.Clean(baseDir)}
}

// Root returns the manager's base directory.
func (m *Manager) Root() string {
	return m.baseDir
}

// Abs implements FS.
func (m *Manager) Abs(path string) string {
	return filepath.Join(m.baseDir, filepath.FromSlash(path))
}

// WriteFileAtomic writes content via a temp file and rename so a crashed
// run never leaves a partially written asset at the target path.
func (m *Manager) WriteFileAtomic(path string, content []byte) error {
	absPath := m.Abs(path)

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return errors.Errorf("creating parent directories: %w", err)
	}

	tempPath := absPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return errors.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath) // Clean up temp file
		return errors.Errorf("renaming temp file: %w", err)
	}

	return nil
}

func (m *Manager) ReadFile(path string) ([]byte, error) {
	content, err := os.ReadFile(m.Abs(path))
	if err != nil {
		return nil, errors.Errorf("reading file: %w", err)
	}
	return content, nil
}

func (m *Manager) FileExists(path string) (bool, error) {
	_, err := os.Stat(m.Abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Errorf("checking file existence: %w", err)
}

func (m *Manager) FileSize(path string) (int64, error) {
	info, err := os.Stat(m.Abs(path))
	if err != nil {
		return 0, errors.Errorf("statting file: %w", err)
	}
	return info.Size(), nil
}

func (m *Manager) CreateDir(path string) error {
	if err := os.MkdirAll(m.Abs(path), 0755); err != nil {
		return errors.Errorf("creating directory: %w", err)
	}
	return nil
}

func (m *Manager) RemoveDir(path string) error {
	if err := os.RemoveAll(m.Abs(path)); err != nil {
		return errors.Errorf("removing directory: %w", err)
	}
	return nil
}

func (m *Manager) ListDir(path string) ([]string, []string, error) {
	entries, err := os.ReadDir(m.Abs(path))
	if err != nil {
		return nil, nil, errors.Errorf("listing directory: %w", err)
	}

	var dirs, files []string
	for _, e := range entries {
		rel := filepath.ToSlash(filepath.Join(path, e.Name()))
		if e.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}
