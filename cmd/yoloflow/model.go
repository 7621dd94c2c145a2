package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelName string

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the current project's model weights",
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pretrained and trained model weights",
	Long: `List the model weights of the project. Listing reconciles the
configuration with the files actually present under pretrain/ and model/:
undeclared weight files gain entries, records without files are dropped.`,
	Args: cobra.NoArgs,
	RunE: runModelList,
}

var modelAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Import a pretrained weight file",
	Long: `Copy a weight file into the project's pretrain directory and record
it in the configuration.

Examples:
  yoloflow model add ~/Downloads/yolo11n.pt
  yoloflow model add ./weights.pt --name finetune-base`,
	Args: cobra.ExactArgs(1),
	RunE: runModelAdd,
}

var modelRemoveCmd = &cobra.Command{
	Use:   "remove <filename>",
	Short: "Remove a model weight file and its record",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelRemove,
}

func init() {
	modelAddCmd.Flags().StringVar(&modelName, "name", "", "target filename (defaults to the source filename)")

	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(modelAddCmd)
	modelCmd.AddCommand(modelRemoveCmd)
}

func runModelList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pretrained, err := p.Models().PretrainedModels()
	if err != nil {
		return err
	}
	for _, m := range pretrained {
		fmt.Fprintf(out, "pretrain\t%s\t%s\t%s\n", m.Filename, m.Name, m.TaskType)
	}
	trained, err := p.Models().TrainedModels()
	if err != nil {
		return err
	}
	for _, m := range trained {
		fmt.Fprintf(out, "model\t%s\t%s\t%s\n", m.Filename, m.Name, m.TaskType)
	}
	return nil
}

func runModelAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	e, err := p.Models().AddPretrained(args[0], modelName)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s as %q\n", e.Filename, e.Name)
	return nil
}

func runModelRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	if err := p.Models().Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}
