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

package upload

import (
	"gitlab.com/tozd/go/errors"
)

// 🌳 DirNode is one directory in the staging tree. The split algorithm
// recurses over this value type so it stays auditable and testable away
// from any real filesystem or transport.
type DirNode struct {
	Path        string     // staging-relative path, "" for the root
	DirectFiles []string   // staging-relative files directly inside this directory
	Children    []*DirNode // immediate subdirectories
}

// TotalFiles counts files in this directory and all descendants.
func (n *DirNode) TotalFiles() int {
	total := len(n.DirectFiles)
	for _, c := range n.Children {
		total += c.TotalFiles()
	}
	return total
}

// 💾 TreeFS is the listing surface tree building needs.
type TreeFS interface {
	// ListDir returns immediate subdirectories and files of path, both
	// relative to the staging root.
	ListDir(path string) (dirs []string, files []string, err error)
}

// 🌳 BuildTree walks the staging tree rooted at path into a DirNode.
func BuildTree(fs TreeFS, path string) (*DirNode, error) {
	dirs, files, err := fs.ListDir(path)
	if err != nil {
		return nil, errors.Errorf("listing %q: %w", path, err)
	}

	node := &DirNode{Path: path, DirectFiles: files}
	for _, dir := range dirs {
		child, err := BuildTree(fs, dir)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
