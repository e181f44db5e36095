package main

import (
	"github.com/spf13/cobra"

	"foundry/internal/infra/provision"
)

func newEnvsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envs",
		Short: "Inspect and manage execution environments",
	}
	cmd.AddCommand(
		newEnvsListCmd(opts),
		newEnvsRegisterCmd(opts),
		newEnvsProvisionCmd(opts),
		newEnvsDeprecateCmd(opts),
	)
	return cmd
}

func newEnvsListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			environments, err := store.ListEnvironments()
			if err != nil {
				return err
			}
			return writeEnvironments(environments, opts.jsonOutput)
		},
	}
}

func newEnvsRegisterCmd(opts *cliOptions) *cobra.Command {
	var (
		interpreter  string
		dependencies []string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an already-prepared environment",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			descriptor, err := store.RegisterEnvironment(interpreter, dependencies)
			if err != nil {
				return err
			}
			return writeEnvironment(descriptor, opts.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&interpreter, "interpreter", "", "interpreter executable inside the environment")
	cmd.Flags().StringArrayVar(&dependencies, "dep", nil, "dependency specifier (repeatable)")
	_ = cmd.MarkFlagRequired("interpreter")
	return cmd
}

func newEnvsProvisionCmd(opts *cliOptions) *cobra.Command {
	var dependencies []string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create and register a virtual environment for a dependency set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			provisioner, err := provision.NewVenvProvisioner(provision.Options{
				Store:   store,
				WorkDir: opts.config.WorkDir,
				Logger:  opts.logger,
			})
			if err != nil {
				return err
			}

			descriptor, err := provisioner.Provision(cmd.Context(), dependencies)
			if err != nil {
				return err
			}
			return writeEnvironment(descriptor, opts.jsonOutput)
		},
	}

	cmd.Flags().StringArrayVar(&dependencies, "dep", nil, "dependency specifier (repeatable)")
	return cmd
}

func newEnvsDeprecateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deprecate <environment-id>",
		Short: "Mark an environment removed (fails while tools still reference it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			return store.DeprecateEnvironment(args[0])
		},
	}
}
