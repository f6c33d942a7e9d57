package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/convoy/internal/project"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show whether a project is initialized",
	Long: `Check the project-context directory under the given path.

Prints the directory's state and, when present, the loaded project name
and custom role count. The path argument defaults to the current
directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if !project.Exists(absPath) {
		printStatus("✗", fmt.Sprintf("No project context at %s", project.Dir(absPath)), color.FgYellow)
		fmt.Println("Run 'convoy init' to create it.")
		return fmt.Errorf("project context not found at %s", project.Dir(absPath))
	}

	ctx, err := project.Load(absPath)
	if err != nil {
		return fmt.Errorf("loading project context: %w", err)
	}

	printStatus("✓", "Project context found: "+ctx.Root, color.FgGreen)
	if ctx.Metadata.Name != "" {
		fmt.Printf("  Project: %s\n", ctx.Metadata.Name)
	}
	if ctx.Metadata.DefaultRole != "" {
		fmt.Printf("  Default role: %s\n", ctx.Metadata.DefaultRole)
	}
	fmt.Printf("  Custom roles: %d\n", len(ctx.CustomRoles))
	return nil
}
