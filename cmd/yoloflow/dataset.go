package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

var (
	datasetType        string
	datasetDescription string
	datasetDeleteFiles bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage the current project's datasets",
}

var datasetImportCmd = &cobra.Command{
	Use:   "import <source> <name>",
	Short: "Import a dataset from a folder or zip archive",
	Long: `Import a dataset into the project. Directories are copied, .zip
archives extracted; anything else is rejected.

Examples:
  yoloflow dataset import ./raw/coco coco
  yoloflow dataset import ./downloads/voc.zip voc --type detection`,
	Args: cobra.ExactArgs(2),
	RunE: runDatasetImport,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project's datasets",
	Args:  cobra.NoArgs,
	RunE:  runDatasetList,
}

var datasetRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a dataset entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetRemove,
}

func init() {
	datasetImportCmd.Flags().StringVar(&datasetType, "type", "", "dataset task type (defaults to the project task type)")
	datasetImportCmd.Flags().StringVar(&datasetDescription, "description", "", "dataset description")
	datasetRemoveCmd.Flags().BoolVar(&datasetDeleteFiles, "files", false, "also delete the dataset directory")

	datasetCmd.AddCommand(datasetImportCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetRemoveCmd)
}

func runDatasetImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}

	// An empty or unknown type defers to the project task type.
	dsType, _ := task.ParseType(datasetType)

	e, err := p.Datasets().Import(args[0], args[1], dsType, datasetDescription)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s) into %s\n", e.Name, e.Type, e.Path)
	return nil
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	for _, e := range p.Datasets().List() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", e.Name, e.Type, e.Path)
	}
	return nil
}

func runDatasetRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	if err := p.Datasets().Remove(args[0], datasetDeleteFiles); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}
