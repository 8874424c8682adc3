// Package git inspects the local repository the engine is invoked from.
package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DetectBranch reads .git/HEAD in the given directory and returns the
// currently checked-out branch name. Used as the default branch for an
// event when the caller does not pass one explicitly.
func DetectBranch(dir string) (string, error) {
	headPath := filepath.Join(dir, ".git", "HEAD")
	data, err := os.ReadFile(headPath)
	if err != nil {
		return "", fmt.Errorf("could not read .git/HEAD: %w", err)
	}

	head := strings.TrimSpace(string(data))
	// Symbolic ref: "ref: refs/heads/<branch>"
	if ref, ok := strings.CutPrefix(head, "ref: "); ok {
		branch, ok := strings.CutPrefix(ref, "refs/heads/")
		if !ok {
			return "", fmt.Errorf("HEAD points outside refs/heads: %s", ref)
		}
		return branch, nil
	}
	return "", errors.New("detached HEAD: no branch checked out")
}
