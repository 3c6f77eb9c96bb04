package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/compute"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/module"
	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// ErrInvalidBinding is returned for malformed --channel flags.
var ErrInvalidBinding = errors.New("invalid channel binding")

// session holds the platform clients of one command invocation.
type session struct {
	cfg      *CLIConfig
	log      logrus.FieldLogger
	client   transport.Client
	redis    *goredis.Client
	resolver *channels.Resolver
	compute  *compute.Client
	registry *module.HTTPRegistry
}

func newSession(cfg *CLIConfig, log logrus.FieldLogger) (*session, error) {
	client, err := transport.NewClient(log, &cfg.Platform)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		log:      log,
		client:   client,
		registry: module.NewHTTPRegistry(client),
	}

	var catalog channels.Catalog = channels.NewHTTPCatalog(client)

	if cfg.Redis.Address != "" {
		opt, optErr := cfg.Redis.Options()
		if optErr != nil {
			_ = client.Close()
			return nil, optErr
		}

		s.redis = goredis.NewClient(opt)
		catalog = channels.NewCachedCatalog(log, catalog, s.redis, cfg.Redis.KeyPrefix(), cfg.Catalog.CacheTTL)
	}

	policy := channels.MergeOverride
	if cfg.Catalog.Strict {
		policy = channels.MergeStrict
	}
	s.resolver = channels.NewResolver(log, catalog, channels.WithMergePolicy(policy))

	s.compute, err = compute.NewClient(log, client, &cfg.Compute)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	observability.StartMetricsServer(log, cfg.MetricsAddr)

	return s, nil
}

// Close releases the session clients and stops the metrics server.
func (s *session) Close() error {
	var errs []error

	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}

	errs = append(errs, s.client.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs = append(errs, observability.StopMetricsServer(ctx))

	return errors.Join(errs...)
}

// parseBinding parses NAME=ORIGIN:RID[:SCOPE]:CHANNEL[;TAG=VALUE...]. Datasource bindings
// omit the scope.
func parseBinding(s string) (string, channels.ChannelRef, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", channels.ChannelRef{}, fmt.Errorf("%w: %q: expected NAME=ORIGIN:RID[:SCOPE]:CHANNEL", ErrInvalidBinding, s)
	}

	spec, tagSpec, _ := strings.Cut(spec, ";")

	tags := map[string]string{}
	if tagSpec != "" {
		for _, pair := range strings.Split(tagSpec, ";") {
			k, v, found := strings.Cut(pair, "=")
			if !found || k == "" {
				return "", channels.ChannelRef{}, fmt.Errorf("%w: %q: malformed tag %q", ErrInvalidBinding, s, pair)
			}
			tags[k] = v
		}
	}

	parts := strings.Split(spec, ":")

	var ref channels.ChannelRef

	switch {
	case len(parts) == 3 && parts[0] == string(channels.OriginDatasource):
		ref = channels.DatasourceChannel(parts[1], parts[2], tags)
	case len(parts) == 4 && parts[0] == string(channels.OriginAsset):
		ref = channels.AssetChannel(parts[1], parts[2], parts[3], tags)
	case len(parts) == 4 && parts[0] == string(channels.OriginRun):
		ref = channels.RunChannel(parts[1], parts[2], parts[3], tags)
	default:
		return "", channels.ChannelRef{}, fmt.Errorf("%w: %q: expected asset:RID:SCOPE:CHANNEL, run:RID:SCOPE:CHANNEL or datasource:RID:CHANNEL", ErrInvalidBinding, s)
	}

	if err := ref.Validate(); err != nil {
		return "", channels.ChannelRef{}, fmt.Errorf("%w: %q: %w", ErrInvalidBinding, s, err)
	}

	return name, ref, nil
}

// environment resolves the channel bindings into parser identifiers.
func (s *session) environment(ctx context.Context, bindings []string, resolve bool) (map[string]expr.NumericExpr, error) {
	env := make(map[string]expr.NumericExpr, len(bindings))

	for _, b := range bindings {
		name, ref, err := parseBinding(b)
		if err != nil {
			return nil, err
		}

		if resolve {
			ref, err = s.resolver.Resolve(ctx, ref)
			if err != nil {
				return nil, err
			}
		}

		env[name] = expr.FromRef(ref)
	}

	return env, nil
}

// parseInstant accepts RFC3339 times, "now", and durations relative to now such as "-1h".
func parseInstant(s string, now time.Time) (wire.Timestamp, error) {
	if s == "" || s == "now" {
		return wire.FromTime(now), nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return wire.FromTime(now.Add(d)), nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return wire.Timestamp{}, fmt.Errorf("invalid time %q: expected RFC3339, now or a duration", s)
	}

	return wire.FromTime(t), nil
}
