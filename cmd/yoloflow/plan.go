package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

var (
	planPretrained string
	planBindings   []string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the current project's training plans",
}

var planCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a training plan",
	Long: `Create a training plan with default parameters. Dataset bindings take
the form name=target, where target is train, val, test, mixed, or unused.

Examples:
  yoloflow plan create baseline --pretrained yolo11n.pt --bind coco=mixed
  yoloflow plan create split-run --bind train-set=train --bind val-set=val`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanCreate,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans, newest first",
	Args:  cobra.NoArgs,
	RunE:  runPlanList,
}

var planStatusCmd = &cobra.Command{
	Use:   "status <plan-id> <status>",
	Short: "Apply a plan status transition",
	Long: `Move a plan through its lifecycle: pending -> running -> completed or
failed. Illegal transitions are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runPlanStatus,
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan and its index entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanDelete,
}

func init() {
	planCreateCmd.Flags().StringVar(&planPretrained, "pretrained", "", "pretrained weight filename to start from")
	planCreateCmd.Flags().StringArrayVar(&planBindings, "bind", nil, "dataset binding name=target (repeatable)")

	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planStatusCmd)
	planCmd.AddCommand(planDeleteCmd)
}

func runPlanCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}

	plan, err := p.Plans().Create(args[0], planPretrained)
	if err != nil {
		return err
	}

	for _, b := range planBindings {
		name, target, err := splitBinding(b)
		if err != nil {
			return err
		}
		if _, err := p.Datasets().Get(name); err != nil {
			return err
		}
		plan.BindDataset(name, target)
	}
	if len(planBindings) > 0 {
		if err := plan.Save(); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created plan %s (%s)\n", plan.Name, plan.ID)
	return nil
}

func splitBinding(s string) (string, task.Target, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			target, err := task.ParseTarget(s[i+1:])
			if err != nil {
				return "", "", err
			}
			return s[:i], target, nil
		}
	}
	return "", "", fmt.Errorf("binding %q is not of the form name=target", s)
}

func runPlanList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	for _, plan := range p.Plans().List() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
			plan.ID, plan.Name, plan.Status(), plan.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runPlanStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	status, err := task.ParsePlanStatus(args[1])
	if err != nil {
		return err
	}
	if err := p.Plans().SetStatus(args[0], status); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "plan %s is now %s\n", args[0], status)
	return nil
}

func runPlanDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.openProject()
	if err != nil {
		return err
	}
	if err := p.Plans().Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted plan %s\n", args[0])
	return nil
}
