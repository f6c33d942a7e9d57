package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/convoy/internal/project"
)

var initProjectName string

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize the project-context directory",
	Long: `Initialize a directory for use with convoy.

Creates the project-context tree:
  .convoy/context.yaml     project metadata
  .convoy/rules.yaml       coding standards
  .convoy/architecture.md  free-text architecture notes
  .convoy/agents/          custom agent role definitions (*.yaml)

The path argument is optional and defaults to the current directory.
Existing files are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initProjectName, "project-name", "", "Override auto-detected project name")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	projectName := initProjectName
	if projectName == "" {
		projectName = filepath.Base(absPath)
	}

	alreadyThere := project.Exists(absPath)
	if err := project.Init(absPath, projectName); err != nil {
		printStatus("✗", "Failed to create project context", color.FgRed)
		return err
	}

	if alreadyThere {
		printStatus("✓", "Project context already present, missing files filled in", color.FgGreen)
	} else {
		printStatus("✓", "Created "+project.Dir(absPath), color.FgGreen)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Describe the project in .convoy/context.yaml")
	fmt.Println("  2. Add custom agent roles under .convoy/agents/")
	fmt.Println("  3. Check the setup:")
	fmt.Println("     convoy status")

	return nil
}

// printStatus prints a status line with color.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
