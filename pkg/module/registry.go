package module

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethpandaops/seriesgraph/pkg/canonical"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
)

// Summary describes one registered module version.
type Summary struct {
	RID         string `json:"rid"`
	Name        string `json:"name"`
	Version     int    `json:"version"`
	ContentHash string `json:"contentHash"`
}

// ListRequest pages through registered modules.
type ListRequest struct {
	PageSize  int
	PageToken string
}

// ListResponse is one page of modules. NextPageToken is empty on the last page.
type ListResponse struct {
	Modules       []Summary `json:"modules"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// Registry persists module definitions. Registering an unchanged definition returns the
// existing version; a changed definition under the same name gets a new version.
type Registry interface {
	Register(ctx context.Context, m *Module) (Summary, error)
	Get(ctx context.Context, rid string, version int) (*RegisteredModule, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// RegisteredModule is a module version known to the platform.
type RegisteredModule struct {
	Summary
	module *Module
}

// Module returns the registered definition.
func (r *RegisteredModule) Module() *Module { return r.module }

// Apply binds values; the Application remembers the registration it came from.
func (r *RegisteredModule) Apply(values Values) (*Application, error) {
	app, err := r.module.Apply(values)
	if err != nil {
		return nil, err
	}

	app.registered = r

	return app, nil
}

// Register persists m and returns its handle. The registry must echo the local content hash.
func (m *Module) Register(ctx context.Context, reg Registry) (*RegisteredModule, error) {
	summary, err := reg.Register(ctx, m)
	if err != nil {
		observability.RecordModuleRegistration(m.name, "error")
		return nil, fmt.Errorf("register module %s: %w", m.name, err)
	}

	if want := m.Hash(); summary.ContentHash != want {
		observability.RecordModuleRegistration(m.name, "hash_mismatch")
		return nil, fmt.Errorf("%w: module %s registered with hash %s, local hash %s", ErrInvalidModule, m.name, summary.ContentHash, want)
	}

	observability.RecordModuleRegistration(m.name, "ok")

	return &RegisteredModule{Summary: summary, module: m}, nil
}

// HTTPRegistry is the platform module registry API.
type HTTPRegistry struct {
	client transport.Client
}

// NewHTTPRegistry creates a registry backed by the platform API.
func NewHTTPRegistry(client transport.Client) *HTTPRegistry {
	return &HTTPRegistry{client: client}
}

const modulesPath = "/modules/v1/modules"

type getResponse struct {
	Summary
	Definition json.RawMessage `json:"definition"`
}

// Register implements Registry.
func (r *HTTPRegistry) Register(ctx context.Context, m *Module) (Summary, error) {
	body, err := canonical.Marshal(map[string]any{
		"definition":  m.Value(),
		"contentHash": m.Hash(),
	})
	if err != nil {
		return Summary{}, err
	}

	resp, err := r.client.Send(ctx, http.MethodPost, modulesPath, "application/json", body)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	if err := json.Unmarshal(resp, &summary); err != nil {
		return Summary{}, fmt.Errorf("failed to parse registration response: %w", err)
	}

	return summary, nil
}

// Get implements Registry. Version 0 means the latest version.
func (r *HTTPRegistry) Get(ctx context.Context, rid string, version int) (*RegisteredModule, error) {
	path := modulesPath + "/" + url.PathEscape(rid)
	if version > 0 {
		path += "?version=" + strconv.Itoa(version)
	}

	resp, err := r.client.Send(ctx, http.MethodGet, path, "application/json", nil)
	if err != nil {
		if transport.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotRegistered, rid, err)
		}

		return nil, err
	}

	var out getResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("failed to parse module %s: %w", rid, err)
	}

	m, err := Unmarshal(out.Definition)
	if err != nil {
		return nil, fmt.Errorf("module %s version %d: %w", rid, out.Version, err)
	}

	return &RegisteredModule{Summary: out.Summary, module: m}, nil
}

// List implements Registry.
func (r *HTTPRegistry) List(ctx context.Context, req ListRequest) (ListResponse, error) {
	q := url.Values{}
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}

	if req.PageToken != "" {
		q.Set("pageToken", req.PageToken)
	}

	path := modulesPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out ListResponse
	if err := r.client.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return ListResponse{}, err
	}

	return out, nil
}

// ListAll follows page tokens until the registry is exhausted.
func ListAll(ctx context.Context, reg Registry, pageSize int) ([]Summary, error) {
	var (
		out   []Summary
		token string
	)

	for {
		page, err := reg.List(ctx, ListRequest{PageSize: pageSize, PageToken: token})
		if err != nil {
			return nil, err
		}

		out = append(out, page.Modules...)

		if page.NextPageToken == "" {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// Unmarshal rebuilds a module from its registered definition document. The variables function
// is not needed: the templates are the definition.
func Unmarshal(data []byte) (*Module, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc struct {
		Name       string                    `json:"name"`
		Doc        string                    `json:"doc"`
		Parameters []ParamSpec               `json:"parameters"`
		Variables  map[string]map[string]any `json:"variables"`
		Exports    map[string]struct {
			Doc        string         `json:"doc"`
			Expression map[string]any `json:"expression"`
		} `json:"exports"`
	}

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}

	m := &Module{
		name:       doc.Name,
		doc:        doc.Doc,
		params:     doc.Parameters,
		variables:  make(map[string]expr.Node, len(doc.Variables)),
		exports:    make(map[string]expr.Node, len(doc.Exports)),
		exportDocs: make(map[string]string, len(doc.Exports)),
	}

	for _, p := range m.params {
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("%w: parameter %q has unknown kind %q", ErrInvalidModule, p.Name, p.Kind)
		}
	}

	for name, v := range doc.Variables {
		n, err := expr.FromValue(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		m.variables[name] = n
	}

	for name, export := range doc.Exports {
		n, err := expr.FromValue(export.Expression)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}

		m.exports[name] = n
		m.exportDocs[name] = export.Doc
	}

	if err := m.checkPlaceholders(); err != nil {
		return nil, err
	}

	return m, nil
}
