package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/seriesgraph/pkg/compute"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

// ErrNoExpressions is returned for a batch file without expressions.
var ErrNoExpressions = errors.New("batch file has no expressions")

// BatchFile lists expressions evaluated over one range in a single batch. Variables are sent
// as request context variables, evaluated once, and later variables and expressions refer to
// them by name.
type BatchFile struct {
	Start       string            `yaml:"start"`
	End         string            `yaml:"end"`
	Variables   []BatchExpression `yaml:"variables"`
	Expressions []BatchExpression `yaml:"expressions"`
}

// BatchExpression is one named expression of a batch file.
type BatchExpression struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// LoadBatchFile reads a batch file.
func LoadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided batch file path
	if err != nil {
		return nil, err
	}

	f := &BatchFile{Start: "-1h", End: "now"}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if len(f.Expressions) == 0 {
		return nil, ErrNoExpressions
	}

	return f, nil
}

// contextVariables parses the variables in file order and binds each name in env to a context
// reference, so later variables and expressions share one evaluation.
func (f *BatchFile) contextVariables(env map[string]expr.NumericExpr) ([]compute.Option, error) {
	opts := make([]compute.Option, 0, len(f.Variables))

	for _, v := range f.Variables {
		if _, ok := env[v.Name]; ok {
			return nil, fmt.Errorf("%w: variable %q shadows a channel binding", ErrInvalidBinding, v.Name)
		}

		e, err := expr.Parse(v.Expression, env)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}

		opts = append(opts, compute.WithVariable(v.Name, e))
		env[v.Name] = expr.Ref(v.Name)
	}

	return opts, nil
}

//nolint:gochecknoglobals // Cobra commands are typically global
var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Evaluate the expressions of a batch file",
	Long: `Evaluate every expression of a YAML batch file over the same range. Results are
printed in file order; an expression the platform rejects is reported without
failing the others.

Example file:
  start: -6h
  end: now
  variables:
    - name: speed
      expression: sqrt(vx*vx + vy*vy)
  expressions:
    - name: roll
      expression: atan2(scale(w*x + y*z, 2), offset(scale(x*x + y*y, -2), 1))
    - name: moving_roll
      expression: filter(w, speed > 0.5)`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addEvaluationFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	file, err := LoadBatchFile(args[0])
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now()

	start, err := parseInstant(file.Start, now)
	if err != nil {
		return err
	}

	end, err := parseInstant(file.End, now)
	if err != nil {
		return err
	}

	env, err := s.environment(ctx, bucketChannels, bucketResolve)
	if err != nil {
		return err
	}

	opts, err := file.contextVariables(env)
	if err != nil {
		return err
	}

	exprs := make([]expr.NumericExpr, len(file.Expressions))
	for i, be := range file.Expressions {
		exprs[i], err = expr.Parse(be.Expression, env)
		if err != nil {
			return fmt.Errorf("%s: %w", be.Name, err)
		}
	}

	results, err := compute.BatchComputeBuckets(ctx, s.compute, exprs, start, end, opts...)
	if err != nil {
		return err
	}

	failed := 0

	for i, r := range results {
		if r.Err != nil {
			failed++
		}

		if err := printResult(cmd.OutOrStdout(), resultView{
			Label:      file.Expressions[i].Name,
			Expression: exprs[i],
			Start:      start,
			End:        end,
			Series:     r.Series,
			Err:        r.Err,
		}); err != nil {
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"expressions": len(results),
		"failed":      failed,
	}).Info("Batch complete")

	return nil
}
