// Package workspace resolves the workspace that scopes persisted state.
package workspace

import (
	"os"
	"path/filepath"
)

// Info identifies a workspace.
type Info struct {
	Path string
	Name string
}

// Resolve returns the workspace rooted at path, or at the current working
// directory when path is empty.
func Resolve(path string) (Info, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Info{}, err
		}
		path = wd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Path: abs, Name: filepath.Base(abs)}, nil
}

// DisplayName returns the name shown in the panel header.
func (i Info) DisplayName() string {
	if i.Name == "" {
		return "No workspace"
	}
	return i.Name
}
