package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AyalaKaguya/yoloflow/internal/backend"
	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/config"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Discover, install, and inspect training backends",
}

var backendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered backend modules and their state",
	Args:  cobra.NoArgs,
	RunE:  runBackendList,
}

var backendLoadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Load a backend module and persist its descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackendLoad,
}

var backendInstallCmd = &cobra.Command{
	Use:   "install <name>",
	Short: "Install a backend's environment",
	Long: `Run the install pipeline of a backend module: create its environment,
run its pre-install hook, sync dependencies, and run its post-install hook.

Example:
  yoloflow backend install ultralytics`,
	Args: cobra.ExactArgs(1),
	RunE: runBackendInstall,
}

var backendUninstallCmd = &cobra.Command{
	Use:   "uninstall <name>",
	Short: "Remove a backend's environment and installed state",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackendUninstall,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [task]",
	Short: "Show the model catalog",
	Long: `Show the merged model catalog: the built-in line-up plus the variants
contributed by installed backends. With a task argument the listing is
filtered to variants supporting it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalog,
}

func init() {
	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendLoadCmd)
	backendCmd.AddCommand(backendInstallCmd)
	backendCmd.AddCommand(backendUninstallCmd)
}

func (a *app) openBackends() (*backend.Registry, error) {
	reg, err := backend.NewRegistry(a.cfg.Backends.Root, config.Version, a.logger)
	if err != nil {
		return nil, err
	}
	if err := reg.LoadAll(); err != nil {
		a.logger.Warn("some backends failed to load")
	}
	return reg, nil
}

func runBackendList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	reg, err := a.openBackends()
	if err != nil {
		return err
	}

	descs, err := reg.Known()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, desc := range descs {
		state := "not loaded"
		if _, loadErr := reg.Get(desc.Name); loadErr == nil {
			state = "available"
			if ok, reason, _ := reg.Available(desc.Name); !ok {
				state = "unavailable: " + string(reason)
			} else if desc.Installed {
				state = "installed"
			}
		} else if desc.Installed {
			state = "installed, not loaded"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", desc.Name, desc.Version, state)
	}
	return nil
}

func runBackendLoad(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	reg, err := backend.NewRegistry(a.cfg.Backends.Root, config.Version, a.logger)
	if err != nil {
		return err
	}
	if err := reg.Load(args[0]); err != nil {
		return err
	}
	desc, err := reg.Describe(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %s %s (%s)\n", desc.Name, desc.Version, desc.Author)
	return nil
}

func runBackendInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	reg, err := a.openBackends()
	if err != nil {
		return err
	}

	env := &backend.UvEnvManager{Binary: a.cfg.Backends.UvBinary, Logger: a.logger}
	job, err := reg.Install(cmd.Context(), args[0], env)
	if err != nil {
		return err
	}
	for ev := range job.Events() {
		if ev.Err != nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ev.Backend, ev.Stage)
	}
	if err := job.Wait(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", args[0])
	return nil
}

func runBackendUninstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	reg, err := a.openBackends()
	if err != nil {
		return err
	}
	if err := reg.Uninstall(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s\n", args[0])
	return nil
}

func runCatalog(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	reg, err := a.openBackends()
	if err != nil {
		return err
	}

	cat := catalog.New(a.logger)
	reg.AttachCatalog(cat)

	models := cat.All()
	if len(args) == 1 {
		t, err := task.ParseType(args[0])
		if err != nil {
			return err
		}
		models = cat.ModelsForTask(t)
	}

	out := cmd.OutOrStdout()
	for _, m := range models {
		origin := "builtin"
		if !m.BuiltIn() {
			origin = m.FromBackend
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", m.Filename, m.Name, m.Parameters, origin)
	}
	return nil
}
