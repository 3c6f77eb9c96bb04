package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/seriesgraph/pkg/module"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	moduleVersion  int
	modulePageSize int
)

// moduleCmd represents the module command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Register and inspect expression modules",
	Long:  `Commands for registering module definitions and inspecting registered modules.`,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var moduleRegisterCmd = &cobra.Command{
	Use:   "register FILE",
	Short: "Register a module definition",
	Long:  `Register a module definition file (the JSON encoding of a module). Registering an unchanged definition returns the existing version.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runModuleRegister,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var moduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered modules",
	Args:  cobra.NoArgs,
	RunE:  runModuleList,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var moduleDescribeCmd = &cobra.Command{
	Use:   "describe FILE|RID",
	Short: "Describe a module definition file or a registered module",
	Args:  cobra.ExactArgs(1),
	RunE:  runModuleDescribe,
}

func init() {
	rootCmd.AddCommand(moduleCmd)
	moduleCmd.AddCommand(moduleRegisterCmd)
	moduleCmd.AddCommand(moduleListCmd)
	moduleCmd.AddCommand(moduleDescribeCmd)

	moduleListCmd.Flags().IntVar(&modulePageSize, "page-size", 50, "modules fetched per request")
	moduleDescribeCmd.Flags().IntVar(&moduleVersion, "version", 0, "registered version to describe (0 is the latest)")
}

func loadModuleFile(path string) (*module.Module, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided module file path
	if err != nil {
		return nil, err
	}

	m, err := module.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

func runModuleRegister(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	m, err := loadModuleFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close session")
		}
	}()

	registered, err := m.Register(context.Background(), s.registry)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s version %d (%s)\n",
		registered.Name, registered.RID, registered.Version, registered.ContentHash)

	return err
}

func runModuleList(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close session")
		}
	}()

	summaries, err := module.ListAll(context.Background(), s.registry, modulePageSize)
	if err != nil {
		return err
	}

	// Print table
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tRID\tVERSION\tCONTENT HASH")
	for _, sum := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sum.Name, sum.RID, strconv.Itoa(sum.Version), sum.ContentHash[:min(16, len(sum.ContentHash))])
	}

	return w.Flush()
}

func runModuleDescribe(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	var m *module.Module

	if _, statErr := os.Stat(args[0]); statErr == nil {
		loaded, err := loadModuleFile(args[0])
		if err != nil {
			return err
		}
		m = loaded
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s, err := newSession(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := s.Close(); closeErr != nil {
				logger.WithError(closeErr).Error("Failed to close session")
			}
		}()

		registered, err := s.registry.Get(context.Background(), args[0], moduleVersion)
		if err != nil {
			return err
		}
		m = registered.Module()
	}

	doc, err := module.Describe(m)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)

	return err
}
