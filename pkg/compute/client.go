// Package compute evaluates expressions on the remote evaluator. A request carries one or more
// canonical expression trees and a time range; the evaluator answers with bucket statistics or
// raw points per expression. Batches keep their input order whatever order the evaluator
// or the network completes them in.
package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// Client is a compute session. It owns no global state; every call goes through the
// transport it was created with.
type Client struct {
	transport transport.Client
	cfg       Config
	log       logrus.FieldLogger
}

// NewClient creates a compute client.
func NewClient(log logrus.FieldLogger, t transport.Client, cfg *Config) (*Client, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compute config: %w", err)
	}

	return &Client{
		transport: t,
		cfg:       c,
		log:       log.WithField("component", "compute"),
	}, nil
}

// ComputeBuckets evaluates e over [start, end]. Per-expression evaluator failures are returned
// as *BucketEvaluationError.
func ComputeBuckets(ctx context.Context, c *Client, e expr.NumericExpr, start, end wire.Timestamp, opts ...Option) (*Series, error) {
	results, err := BatchComputeBuckets(ctx, c, []expr.NumericExpr{e}, start, end, opts...)
	if err != nil {
		return nil, err
	}

	if results[0].Err != nil {
		return nil, results[0].Err
	}

	return results[0].Series, nil
}

// BatchComputeBuckets evaluates exprs over [start, end] and returns one Result per expression
// in input order. Expressions are sent in round trips of at most MaxBatchSize, up to
// Concurrency at a time.
//
// Evaluation failures are isolated per slot in Result.Err. A transport failure, malformed
// response or cancellation fails the whole call and no partial results are returned.
//
// Every expression must be fully bound: module placeholders and references to variables not
// defined with WithVariable fail the call before anything is sent.
func BatchComputeBuckets(ctx context.Context, c *Client, exprs []expr.NumericExpr, start, end wire.Timestamp, opts ...Option) ([]Result, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	o := newCallOptions(opts)

	vars, err := o.context()
	if err != nil {
		return nil, err
	}

	nodes := make([]expr.Node, len(exprs))
	for i, e := range exprs {
		n, err := e.Node()
		if err != nil {
			return nil, fmt.Errorf("expression %d: %w", i, err)
		}

		if err := checkBound(n, vars); err != nil {
			return nil, fmt.Errorf("expression %d: %w", i, err)
		}
		nodes[i] = n
	}

	results := make([]Result, len(nodes))
	size := c.cfg.MaxBatchSize

	observability.RecordBatchSize(len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for offset := 0; offset < len(nodes); offset += size {
		chunk := nodes[offset:min(offset+size, len(nodes))]

		g.Go(func() error {
			chunkResults, err := c.evaluate(gctx, chunk, reachable(chunk, vars), offset, start, end)
			if err != nil {
				return err
			}

			// Each goroutine writes a disjoint range of slots.
			copy(results[offset:], chunkResults)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		observability.RecordError("compute", "batch")
		return nil, err
	}

	return results, nil
}

func checkRange(start, end wire.Timestamp) error {
	if err := start.Validate(); err != nil {
		return fmt.Errorf("%w: start: %w", ErrInvalidRange, err)
	}

	if err := end.Validate(); err != nil {
		return fmt.Errorf("%w: end: %w", ErrInvalidRange, err)
	}

	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange, start, end)
	}

	return nil
}

// evaluate runs one round trip. offset is the index of chunk[0] in the caller's batch.
func (c *Client) evaluate(ctx context.Context, chunk []expr.Node, vars []Variable, offset int, start, end wire.Timestamp) ([]Result, error) {
	plan, err := NewPlan(chunk, !c.cfg.DisableHoisting, vars...)
	if err != nil {
		return nil, err
	}

	observability.RecordHoistedVariables(len(plan.Variables))

	req := &Request{Start: start, End: end, Buckets: c.cfg.Buckets, Plan: plan}

	body, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode compute request: %w", err)
	}

	log := c.log.WithFields(logrus.Fields{
		"request":     req.Hash()[:16],
		"expressions": len(chunk),
		"offset":      offset,
		"hoisted":     len(plan.Variables),
	})

	started := time.Now()

	resp, err := c.transport.Send(ctx, http.MethodPost, c.cfg.Path, "application/json", body)
	if err != nil {
		log.WithError(err).Warn("Compute request failed")
		return nil, fmt.Errorf("compute request: %w", err)
	}

	decoded, err := decodeResponse(resp, len(chunk))
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(chunk))
	failed := 0

	for i, r := range decoded {
		index := offset + i
		results[i] = c.result(index, chunk[i], r, start, end)

		mode := "buckets"
		if results[i].Series != nil && results[i].Series.Raw() {
			mode = "raw"
		}

		if results[i].Err != nil {
			failed++
			observability.RecordComputeResult(mode, "error", 0)

			continue
		}

		observability.RecordComputeResult(mode, "ok", results[i].Series.Len())
	}

	log.WithFields(logrus.Fields{
		"failed":   failed,
		"duration": time.Since(started),
	}).Debug("Compute round trip complete")

	return results, nil
}

func (c *Client) result(index int, node expr.Node, r ResultJSON, start, end wire.Timestamp) Result {
	fail := func(code, message string, err error) Result {
		return Result{Index: index, Err: &BucketEvaluationError{
			Index:    index,
			ExprHash: expr.Hash(node),
			Code:     code,
			Message:  message,
			Err:      err,
		}}
	}

	if r.Error != nil {
		return fail(r.Error.Code, r.Error.Message, nil)
	}

	series := &Series{Buckets: r.Buckets}

	if len(r.Points) > 0 && string(r.Points) != "null" {
		if len(r.Buckets) > 0 {
			return fail("MALFORMED_RESULT", "both buckets and points", ErrMalformedResult)
		}

		var points wire.Points
		if err := json.Unmarshal(r.Points, &points); err != nil {
			return fail("MALFORMED_RESULT", "", fmt.Errorf("%w: %w", ErrMalformedResult, err))
		}
		series.Points = &points
	}

	if err := series.validate(start, end); err != nil {
		return fail("MALFORMED_RESULT", "", fmt.Errorf("%w: %w", ErrMalformedResult, err))
	}

	return Result{Index: index, Series: series}
}
