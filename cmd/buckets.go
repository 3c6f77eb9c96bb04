package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/seriesgraph/pkg/canonical"
	"github.com/ethpandaops/seriesgraph/pkg/compute"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/render"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	bucketChannels []string
	bucketStart    string
	bucketEnd      string
	bucketResolve  bool
	bucketTemplate string
)

// bucketsCmd evaluates one expression
//
//nolint:gochecknoglobals // Cobra commands are typically global
var bucketsCmd = &cobra.Command{
	Use:   "buckets EXPRESSION",
	Short: "Evaluate an expression into time buckets",
	Long: `Evaluate an infix expression over bound channels and print its buckets.

Example:
  seriesgraph buckets 'atan2(scale(w*x + y*z, 2), offset(scale(x*x + y*y, -2), 1))' \
    --channel w=asset:ri.asset.main.asset.1:mavlink:attitude_quaternion.q1 \
    --channel x=asset:ri.asset.main.asset.1:mavlink:attitude_quaternion.q2 \
    --channel y=asset:ri.asset.main.asset.1:mavlink:attitude_quaternion.q3 \
    --channel z=asset:ri.asset.main.asset.1:mavlink:attitude_quaternion.q4 \
    --start -1h`,
	Args: cobra.ExactArgs(1),
	RunE: runBuckets,
}

func init() {
	rootCmd.AddCommand(bucketsCmd)
	addEvaluationFlags(bucketsCmd)
	bucketsCmd.Flags().StringVar(&bucketStart, "start", "-1h", "range start: RFC3339, now, or a duration relative to now")
	bucketsCmd.Flags().StringVar(&bucketEnd, "end", "now", "range end: RFC3339, now, or a duration relative to now")
}

// addEvaluationFlags registers the flags shared by commands that evaluate expressions.
func addEvaluationFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&bucketChannels, "channel", nil, "channel binding NAME=ORIGIN:RID[:SCOPE]:CHANNEL[;TAG=VALUE...] (repeatable)")
	cmd.Flags().BoolVar(&bucketResolve, "resolve", true, "validate channels against the catalog and apply scope default tags")
	cmd.Flags().StringVar(&bucketTemplate, "template", "", "Go template (with sprig functions) rendering each result")
}

func runBuckets(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now()

	start, err := parseInstant(bucketStart, now)
	if err != nil {
		return err
	}

	end, err := parseInstant(bucketEnd, now)
	if err != nil {
		return err
	}

	e, err := s.expression(ctx, args[0])
	if err != nil {
		return err
	}

	series, err := compute.ComputeBuckets(ctx, s.compute, e, start, end)
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), resultView{Label: args[0], Expression: e, Start: start, End: end, Series: series})
}

// expression parses src against the --channel bindings.
func (s *session) expression(ctx context.Context, src string) (expr.NumericExpr, error) {
	env, err := s.environment(ctx, bucketChannels, bucketResolve)
	if err != nil {
		return expr.NumericExpr{}, err
	}

	return expr.Parse(src, env)
}

// resultView is the data passed to --template.
type resultView struct {
	Label      string
	Expression expr.NumericExpr
	Start      wire.Timestamp
	End        wire.Timestamp
	Series     *compute.Series
	Err        error
}

func printResult(out io.Writer, v resultView) error {
	if bucketTemplate != "" {
		rendered, err := render.NewTemplateEngine().Render("result", bucketTemplate, v)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, rendered)

		return err
	}

	_, _ = fmt.Fprintf(out, "# %s\n# hash %s\n", v.Expression.String(), v.Expression.Hash())

	if v.Err != nil {
		_, err := fmt.Fprintf(out, "error: %v\n\n", v.Err)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if v.Series.Raw() {
		_, _ = fmt.Fprintln(w, "TIMESTAMP\tVALUE")
		for i, ts := range v.Series.Points.Timestamps {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", ts, pointValue(v.Series.Points, i))
		}
	} else {
		_, _ = fmt.Fprintln(w, "TIMESTAMP\tMEAN\tMIN\tMAX\tVARIANCE\tCOUNT")
		for _, b := range v.Series.Buckets {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				b.Timestamp,
				canonical.FormatFloat(float64(b.Mean)),
				canonical.FormatFloat(float64(b.Min)),
				canonical.FormatFloat(float64(b.Max)),
				canonical.FormatFloat(float64(b.Variance)),
				b.Count)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out)

	return err
}

func pointValue(p *wire.Points, i int) string {
	switch p.Kind() {
	case wire.KindDouble:
		return canonical.FormatFloat(p.Double.Points[i])
	case wire.KindString:
		return strconv.Quote(p.String.Points[i])
	case wire.KindInt:
		return strconv.FormatInt(p.Int.Points[i], 10)
	case wire.KindUint64:
		return strconv.FormatUint(p.Uint64.Points[i], 10)
	default:
		return ""
	}
}
