package scaffold

import (
	"fmt"
	"os"
	"strings"
)

// CheckExisting returns an error if any file Initialize would write already exists.
func CheckExisting() error {
	var existingFiles []string
	for _, f := range Files {
		if _, err := os.Stat(f.Path); err == nil {
			existingFiles = append(existingFiles, f.Path)
		}
	}

	if len(existingFiles) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("project already initialized\n\nFound existing")
	if len(existingFiles) == 1 {
		fmt.Fprintf(&b, ": %s\n", existingFiles[0])
	} else {
		b.WriteString(" files:\n")
		for _, file := range existingFiles {
			fmt.Fprintf(&b, "  - %s\n", file)
		}
	}
	b.WriteString("\nUse 'blockmul init --force' to reinitialize (this will overwrite existing configuration)")

	return fmt.Errorf("%s", b.String())
}
