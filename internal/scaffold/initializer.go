// Package scaffold writes a starter blockmul project into the working directory.
package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/dyluth/blockmul/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// DockerfileName is the Dockerfile written next to blockmul.yml.
const DockerfileName = "Dockerfile.blockmul"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Template    string
	Content     []byte
	Permissions os.FileMode
}

// Files lists what Initialize writes, in order.
var Files = []FileInfo{
	{Path: config.DefaultFile, Template: "templates/blockmul.yml.tmpl", Permissions: 0644},
	{Path: DockerfileName, Template: "templates/Dockerfile.tmpl", Permissions: 0644},
}

// Initialize writes blockmul.yml and the rank image Dockerfile.
// If force is true, existing files are removed first.
func Initialize(force bool) error {
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	return validateCreatedFiles()
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	for _, f := range Files {
		if _, err := os.Stat(f.Path); err == nil {
			fmt.Printf("⚠️  Removing existing %s...\n", f.Path)
			if err := os.Remove(f.Path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", f.Path, err)
			}
		}
	}
	return nil
}

// getTemplateFiles reads all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(Files))
	for _, f := range Files {
		content, err := templatesFS.ReadFile(f.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", f.Path, err)
		}
		f.Content = content
		files = append(files, f)
	}
	return files, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles loads the written configuration the way every command does
func validateCreatedFiles() error {
	if _, err := config.Load(config.DefaultFile); err != nil {
		return fmt.Errorf("created %s is not valid: %w", config.DefaultFile, err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized blockmul project!")
	fmt.Println("\nCreated:")
	for _, f := range Files {
		fmt.Printf("  ✓ %s\n", f.Path)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit blockmul.yml to set the operand sizes")
	fmt.Println("  2. Run 'blockmul run' for a single-process run")
	fmt.Println("  3. Run 'blockmul launch --redis-url redis://localhost:6379' for one process per rank")
}
