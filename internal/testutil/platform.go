package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// CannedResult controls how the fake evaluator answers one expression, keyed by its hash.
type CannedResult struct {
	// Buckets is the number of buckets to synthesise. Zero means DefaultBuckets.
	Buckets int
	// Raw returns double points instead of bucket statistics.
	Raw bool
	// ErrorCode makes the evaluator reject the expression.
	ErrorCode string
	Message   string
	// Delay holds the whole round trip carrying the expression.
	Delay time.Duration
	// OutOfRange shifts the first bucket before the requested start.
	OutOfRange bool
}

// DefaultBuckets is the number of buckets returned for expressions without a canned result.
const DefaultBuckets = 5

// ComputeCall is a compute request as received by the fake platform.
type ComputeCall struct {
	Start       wire.Timestamp
	End         wire.Timestamp
	Buckets     int
	Variables   map[string]expr.Node
	Expressions []expr.Node
}

type scopeDoc struct {
	DefaultTags map[string]string   `json:"defaultTags,omitempty"`
	Channels    []map[string]string `json:"channels"`
}

type storedModule struct {
	RID         string          `json:"rid"`
	Name        string          `json:"name"`
	Version     int             `json:"version"`
	ContentHash string          `json:"contentHash"`
	Definition  json.RawMessage `json:"definition"`
}

// Platform is an in-process fake of the platform APIs: catalog scopes, the module registry,
// the compute evaluator and the ingest writer.
type Platform struct {
	URL string

	mu        sync.Mutex
	scopes    map[string]scopeDoc
	modules   []storedModule
	moduleIDs map[string]string
	canned    map[string]CannedResult
	failNext  int
	failCode  int
	computes  []ComputeCall
	writes    []wire.WriteBatchesRequest
	requests  int
}

// NewPlatform starts a fake platform. The server is closed when the test completes.
func NewPlatform(t *testing.T) *Platform {
	t.Helper()

	p := &Platform{
		scopes:    map[string]scopeDoc{},
		moduleIDs: map[string]string{},
		canned:    map[string]CannedResult{},
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "seriesgraph fake platform",
	})

	app.Use(recover.New())
	app.Use(p.countAndFail)

	app.Get("/catalog/v1/assets/:id/scopes/:scope", p.getScope("asset"))
	app.Get("/catalog/v1/runs/:id/scopes/:scope", p.getScope("run"))
	app.Get("/catalog/v1/datasources/:id", p.getScope("datasource"))

	app.Post("/modules/v1/modules", p.registerModule)
	app.Get("/modules/v1/modules", p.listModules)
	app.Get("/modules/v1/modules/:rid", p.getModule)

	app.Post("/compute/v1/buckets", p.compute)
	app.Post("/ingest/v1/write", p.ingest)

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)

	p.URL = srv.URL

	return p
}

// NewClient returns a transport client for p with fast retries.
func (p *Platform) NewClient(t *testing.T) transport.Client {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := transport.NewClient(logger, &transport.Config{
		BaseURL: p.URL,
		Token:   "test-token",
		Retry: transport.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func scopePath(origin, id, scope string) string {
	return origin + "/" + id + "/" + scope
}

// AddScope registers a catalog scope. Datasources take an empty scope.
func (p *Platform) AddScope(origin, id, scope string, defaults map[string]string, channelNames ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc := scopeDoc{DefaultTags: defaults}
	for _, name := range channelNames {
		doc.Channels = append(doc.Channels, map[string]string{"name": name, "dataType": "double"})
	}

	p.scopes[scopePath(origin, id, scope)] = doc
}

// SetResult cans the evaluator answer for the expression with the given hash.
func (p *Platform) SetResult(exprHash string, r CannedResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.canned[exprHash] = r
}

// FailNext makes the next n requests fail with status.
func (p *Platform) FailNext(n, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failNext = n
	p.failCode = status
}

// ComputeCalls returns the compute requests received so far.
func (p *Platform) ComputeCalls() []ComputeCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]ComputeCall(nil), p.computes...)
}

// Writes returns the ingest requests received so far.
func (p *Platform) Writes() []wire.WriteBatchesRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]wire.WriteBatchesRequest(nil), p.writes...)
}

// Requests is the total number of requests served, failed ones included.
func (p *Platform) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.requests
}

func platformError(status int, code, message string) *fiber.Error {
	return fiber.NewError(status, code+": "+message)
}

// errorHandler renders errors in the platform error document format
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	name := "Default:Internal"
	message := err.Error()

	var fiberErr *fiber.Error
	if ok := errors.As(err, &fiberErr); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	switch code {
	case fiber.StatusNotFound:
		name = "Default:NotFound"
	case fiber.StatusBadRequest:
		name = "Default:InvalidArgument"
	case fiber.StatusServiceUnavailable, fiber.StatusTooManyRequests:
		name = "Default:Unavailable"
	}

	return c.Status(code).JSON(transport.ErrorBody{
		ErrorCode: strconv.Itoa(code),
		ErrorName: name,
		Message:   message,
	})
}

func (p *Platform) countAndFail(c fiber.Ctx) error {
	p.mu.Lock()
	p.requests++

	fail := p.failNext > 0
	status := p.failCode
	if fail {
		p.failNext--
	}
	p.mu.Unlock()

	if fail {
		return platformError(status, "INJECTED", "injected failure")
	}

	return c.Next()
}

func (p *Platform) getScope(origin string) fiber.Handler {
	return func(c fiber.Ctx) error {
		p.mu.Lock()
		doc, ok := p.scopes[scopePath(origin, c.Params("id"), c.Params("scope"))]
		p.mu.Unlock()

		if !ok {
			return platformError(fiber.StatusNotFound, "SCOPE_NOT_FOUND", "no such scope")
		}

		return c.JSON(doc)
	}
}

func (p *Platform) registerModule(c fiber.Ctx) error {
	var req struct {
		Definition  json.RawMessage `json:"definition"`
		ContentHash string          `json:"contentHash"`
	}

	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return platformError(fiber.StatusBadRequest, "INVALID_MODULE", err.Error())
	}

	var def struct {
		Name string `json:"name"`
	}

	if err := json.Unmarshal(req.Definition, &def); err != nil || def.Name == "" || req.ContentHash == "" {
		return platformError(fiber.StatusBadRequest, "INVALID_MODULE", "definition needs a name and a content hash")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rid, ok := p.moduleIDs[def.Name]
	if !ok {
		rid = "ri.module.main.module." + uuid.NewString()
		p.moduleIDs[def.Name] = rid
	}

	latest := 0
	for _, m := range p.modules {
		if m.RID != rid {
			continue
		}

		if m.ContentHash == req.ContentHash {
			return c.JSON(m)
		}

		latest = max(latest, m.Version)
	}

	m := storedModule{
		RID:         rid,
		Name:        def.Name,
		Version:     latest + 1,
		ContentHash: req.ContentHash,
		Definition:  req.Definition,
	}
	p.modules = append(p.modules, m)

	return c.Status(fiber.StatusCreated).JSON(m)
}

func (p *Platform) getModule(c fiber.Ctx) error {
	rid := c.Params("rid")
	version, _ := strconv.Atoi(c.Query("version"))

	p.mu.Lock()
	defer p.mu.Unlock()

	var found *storedModule
	for i := range p.modules {
		m := &p.modules[i]
		if m.RID != rid || (version > 0 && m.Version != version) {
			continue
		}

		if found == nil || m.Version > found.Version {
			found = m
		}
	}

	if found == nil {
		return platformError(fiber.StatusNotFound, "MODULE_NOT_FOUND", rid)
	}

	return c.JSON(found)
}

func (p *Platform) listModules(c fiber.Ctx) error {
	size, _ := strconv.Atoi(c.Query("pageSize"))
	if size <= 0 {
		size = 50
	}

	offset, _ := strconv.Atoi(c.Query("pageToken"))

	p.mu.Lock()
	defer p.mu.Unlock()

	summaries := make([]fiber.Map, 0, len(p.modules))
	for _, m := range p.modules {
		summaries = append(summaries, fiber.Map{
			"rid":         m.RID,
			"name":        m.Name,
			"version":     m.Version,
			"contentHash": m.ContentHash,
		})
	}

	end := min(offset+size, len(summaries))
	if offset > end {
		offset = end
	}

	resp := fiber.Map{"modules": summaries[offset:end]}
	if end < len(summaries) {
		resp["nextPageToken"] = strconv.Itoa(end)
	}

	return c.JSON(resp)
}

type computeRequest struct {
	Start   wire.Timestamp `json:"start"`
	End     wire.Timestamp `json:"end"`
	Buckets int            `json:"buckets"`
	Context struct {
		Variables []struct {
			Name       string          `json:"name"`
			Expression json.RawMessage `json:"expression"`
		} `json:"variables"`
	} `json:"context"`
	Expressions []json.RawMessage `json:"expressions"`
}

func (p *Platform) compute(c fiber.Ctx) error {
	var req computeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return platformError(fiber.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	call := ComputeCall{
		Start:     req.Start,
		End:       req.End,
		Buckets:   req.Buckets,
		Variables: map[string]expr.Node{},
	}

	for _, v := range req.Context.Variables {
		n, err := expr.Unmarshal(v.Expression)
		if err != nil {
			return platformError(fiber.StatusBadRequest, "INVALID_REQUEST", err.Error())
		}
		call.Variables[v.Name] = n
	}

	results := make([]fiber.Map, len(req.Expressions))
	var delay time.Duration

	for i, raw := range req.Expressions {
		n, err := expr.Unmarshal(raw)
		if err != nil {
			results[i] = resultError(i, "INVALID_EXPRESSION", err.Error())
			continue
		}
		call.Expressions = append(call.Expressions, n)

		p.mu.Lock()
		canned := p.canned[expr.Hash(inline(n, call.Variables))]
		p.mu.Unlock()

		delay = max(delay, canned.Delay)
		results[i] = p.evaluate(i, n, call, canned)
	}

	p.mu.Lock()
	p.computes = append(p.computes, call)
	p.mu.Unlock()

	time.Sleep(delay)

	// Results are returned last-first; clients place them by index.
	sort.Slice(results, func(a, b int) bool {
		return results[a]["index"].(int) > results[b]["index"].(int)
	})

	return c.JSON(fiber.Map{"results": results})
}

// inline substitutes context variables back so canned results match the expression as built.
func inline(n expr.Node, vars map[string]expr.Node) expr.Node {
	return expr.Rewrite(n, func(node expr.Node) (expr.Node, bool) {
		ref, ok := node.(expr.Reference)
		if !ok {
			return nil, false
		}

		body, ok := vars[ref.Name]
		if !ok {
			return nil, false
		}

		return inline(body, vars), true
	})
}

func resultError(index int, code, message string) fiber.Map {
	return fiber.Map{"index": index, "error": fiber.Map{"errorCode": code, "message": message}}
}

func (p *Platform) evaluate(index int, n expr.Node, call ComputeCall, canned CannedResult) fiber.Map {
	for _, name := range expr.References(n) {
		if _, ok := call.Variables[name]; !ok {
			return resultError(index, "UNDEFINED_REFERENCE", fmt.Sprintf("context variable %q is not defined", name))
		}
	}

	if canned.ErrorCode != "" {
		return resultError(index, canned.ErrorCode, canned.Message)
	}

	count := canned.Buckets
	if count == 0 {
		count = DefaultBuckets
	}
	count = min(count, call.Buckets)

	start := call.Start.UnixNanos()
	step := (call.End.UnixNanos() - start) / int64(count)

	timestamps := make([]wire.Timestamp, count)
	for k := range timestamps {
		timestamps[k] = wire.FromNanos(start + int64(k)*step)
	}

	if canned.OutOfRange {
		timestamps[0] = wire.FromNanos(start - 1)
	}

	if canned.Raw {
		values := make([]float64, count)
		for k := range values {
			values[k] = float64(k) / 2
		}

		points, err := wire.NewDoublePoints(timestamps, values)
		if err != nil {
			return resultError(index, "INTERNAL", err.Error())
		}

		return fiber.Map{"index": index, "points": points}
	}

	buckets := make([]fiber.Map, count)
	for k, ts := range timestamps {
		buckets[k] = fiber.Map{
			"timestamp": ts,
			"min":       float64(k) - 1,
			"max":       float64(k) + 1,
			"mean":      float64(k),
			"variance":  1.0,
			"count":     10,
		}
	}

	return fiber.Map{"index": index, "buckets": buckets}
}

func (p *Platform) ingest(c fiber.Ctx) error {
	if ct := c.Get(fiber.HeaderContentType); ct != "application/x-protobuf" {
		return platformError(fiber.StatusUnsupportedMediaType, "INVALID_CONTENT_TYPE", ct)
	}

	var req wire.WriteBatchesRequest
	if err := req.UnmarshalBinary(bytes.Clone(c.Body())); err != nil {
		return platformError(fiber.StatusBadRequest, "INVALID_BATCH", err.Error())
	}

	p.mu.Lock()
	p.writes = append(p.writes, req)
	p.mu.Unlock()

	return c.SendStatus(fiber.StatusNoContent)
}
