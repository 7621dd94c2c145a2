package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

var (
	projectTaskType    string
	projectDescription string
	projectRecentLimit int
	projectDeleteFiles bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, open, and list projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new project in the workspace",
	Long: `Create a new project directory with the standard structure under the
workspace projects directory and track it in the index.

Examples:
  yoloflow project create traffic-signs --task detection
  yoloflow project create cells --task segmentation --description "cell masks"`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectCreate,
}

var projectOpenCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a project and record the visit in the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectOpen,
}

var projectSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show counts for the current project",
	Args:  cobra.NoArgs,
	RunE:  runProjectSummary,
}

var projectRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectRecent,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Remove a project from the workspace index",
	Long: `Remove a project from the workspace index. With --files the project
directory itself is deleted as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectDelete,
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectTaskType, "task", "detection", "task type (classification, detection, segmentation, instance_segmentation, keypoint, oriented_detection)")
	projectCreateCmd.Flags().StringVar(&projectDescription, "description", "", "project description")
	projectRecentCmd.Flags().IntVar(&projectRecentLimit, "limit", 10, "maximum number of projects to list")
	projectDeleteCmd.Flags().BoolVar(&projectDeleteFiles, "files", false, "also delete the project directory")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectOpenCmd)
	projectCmd.AddCommand(projectSummaryCmd)
	projectCmd.AddCommand(projectRecentCmd)
	projectCmd.AddCommand(projectDeleteCmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	taskType, err := task.ParseType(projectTaskType)
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	p, err := ws.CreateProject(cmd.Context(), args[0], taskType, projectDescription)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s at %s\n", args[0], p.Path())
	return nil
}

func runProjectOpen(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	p, err := ws.OpenProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "opened %s (%s) at %s\n", p.Name(), p.TaskType(), p.Path())
	return nil
}

func runProjectSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	s, err := p.GetSummary()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "project:    %s (%s)\n", s.Name, s.TaskType)
	fmt.Fprintf(out, "datasets:   %d\n", s.Datasets)
	fmt.Fprintf(out, "pretrained: %d\n", s.PretrainedModels)
	fmt.Fprintf(out, "trained:    %d\n", s.TrainedModels)
	fmt.Fprintf(out, "plans:      %d (%d completed, %d pending)\n", s.Plans, s.CompletedPlans, s.PendingPlans)
	fmt.Fprintf(out, "runs:       %d\n", s.Runs)
	return nil
}

func runProjectRecent(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	entries, err := ws.RecentProjects(cmd.Context(), projectRecentLimit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", e.Name, e.TaskType, e.Path)
	}
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.DeleteProject(cmd.Context(), args[0], projectDeleteFiles); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
