// Package coordinator owns the run lifecycle of spec.md §4.8: it
// constructs connectors from server definitions, opens or creates the
// workspace and run metadata, and exposes the three stage operations
// (FetchIndexes, FetchData, PushData) each bracketed by started/finished
// metadata and gated on the previous stage having finished.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/a5c-ai/hub/internal/config"
	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/fk"
	"github.com/a5c-ai/hub/internal/fkindex"
	"github.com/a5c-ai/hub/internal/identity"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/progress"
	"github.com/a5c-ai/hub/internal/stage"
	"github.com/a5c-ai/hub/internal/storage"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/walker"
	"github.com/a5c-ai/hub/internal/workspace"

	"github.com/redis/go-redis/v9"
)

const applicationName = "journal-migrator"

// Coordinator wires every collaborator the stage engine needs and drives
// the three top-level operations. Either connector may be nil (spec.md
// §4.8: "either may be absent, disabling the corresponding stage") when
// the matching server definition's Host is empty.
type Coordinator struct {
	ws       *workspace.Workspace
	identity *identity.Service
	source   connector.Connector
	target   connector.Connector
	resolver *fk.Resolver
	fkIndex  *fkindex.Index
	observer progress.Observer
	registry *structure.Registry
	tree     []*structure.Node
	logger   *logrus.Logger
	version  string
}

// New constructs a Coordinator from cfg. observer may be nil, in which
// case a NullObserver is used; logger may be nil, in which case a
// default logrus.Logger is created.
func New(cfg *config.Config, observer progress.Observer, logger *logrus.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if observer == nil {
		observer = progress.NewNullObserver()
	}

	backend, err := storage.NewBackend(toStorageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("constructing storage backend: %w", err)
	}
	ws := workspace.New(backend)

	ctx := context.Background()
	txID, err := ws.Init(ctx, applicationName, cfg.Application.Version, newNamespaceString)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	namespace, err := uuid.Parse(txID)
	if err != nil {
		return nil, fmt.Errorf("parsing run namespace %q: %w", txID, err)
	}
	identitySvc := identity.NewService(namespace)

	source, err := buildConnector(cfg.Source, txID)
	if err != nil {
		return nil, fmt.Errorf("constructing source connector: %w", err)
	}
	target, err := buildConnector(cfg.Target, txID)
	if err != nil {
		return nil, fmt.Errorf("constructing target connector: %w", err)
	}

	var fkIdx *fkindex.Index
	var idxHint fk.Index
	if cfg.FKIndex.Driver != "" {
		fkIdx, err = fkindex.Open(cfg.FKIndex.Driver, cfg.FKIndex.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening foreign-key index: %w", err)
		}
		idxHint = fkIdx
	}
	resolver := fk.NewResolver(ws, singularName, idxHint).WithContext(ctx)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		observer = progress.NewRedisObserver(client, "journal-migrator:progress", observer)
	}

	registry := structure.NewRegistry()

	logger.WithFields(logrus.Fields{"transaction_id": txID}).Info("workspace ready")

	return &Coordinator{
		ws: ws, identity: identitySvc,
		source: source, target: target,
		resolver: resolver, fkIndex: fkIdx,
		observer: observer, registry: registry,
		logger: logger, version: cfg.Application.Version,
	}, nil
}

// newNamespaceString adapts identity.NewNamespace's uuid.UUID return to the
// string form workspace.Init persists into metadata.
func newNamespaceString() (string, error) {
	id, err := identity.NewNamespace()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// singularName is the fk.SingularLookup every structure.Node.SingularName
// already implements; resolver calls need it independent of a *Node,
// against a bare type name instead.
func singularName(typeName string) string {
	for _, n := range DefaultTree(nil) {
		if singular, ok := lookupSingular(n, typeName); ok {
			return singular
		}
	}
	if len(typeName) > 0 && typeName[len(typeName)-1] == 's' {
		return typeName[:len(typeName)-1]
	}
	return typeName
}

func lookupSingular(n *structure.Node, typeName string) (string, bool) {
	if n.Type == typeName {
		return n.SingularName(), true
	}
	for _, child := range n.Children {
		if s, ok := lookupSingular(child, typeName); ok {
			return s, true
		}
	}
	return "", false
}

func toStorageConfig(s config.Storage) storage.Config {
	return storage.Config{
		Backend: s.Backend,
		Filesystem: storage.FilesystemConfig{
			BasePath: s.BasePath,
		},
		S3: storage.S3Config{
			Bucket: s.S3Bucket,
			Region: s.S3Region,
		},
		Azure: storage.AzureConfig{
			AccountName:   s.AzureAcct,
			AccountKey:    s.AzureKey,
			ContainerName: s.AzureCtnr,
		},
	}
}

// serviceTokenTTL bounds how long a signed token_secret-derived JWT stays
// valid. The token is signed once, when New builds the connectors; it is
// not re-signed during a run.
const serviceTokenTTL = time.Hour

// buildConnector constructs server's connector, if configured. runNamespace
// is embedded into any token_secret-signed JWT (SPEC_FULL.md's JWT auth
// path) so a target server can correlate retried requests back to one run.
func buildConnector(server config.Server, runNamespace string) (connector.Connector, error) {
	if !server.Enabled() {
		return nil, nil
	}
	timeout := 30 * time.Second
	if server.TimeoutSecs > 0 {
		timeout = time.Duration(server.TimeoutSecs) * time.Second
	}

	token := server.Token
	if token == "" && server.TokenSecret != "" {
		signed, err := connector.SignServiceToken(server.TokenSecret, runNamespace, serviceTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("signing service token for %s: %w", server.Host, err)
		}
		token = signed
	}

	switch server.Type {
	case "ssh":
		opts := []connector.SSHOption{connector.WithSSHTimeout(timeout)}
		if server.Port != 0 {
			opts = append(opts, connector.WithSSHPort(server.Port))
		}
		if server.Username != "" {
			opts = append(opts, connector.WithSSHCredentials(server.Username, server.Password))
		}
		return connector.NewSSHConnector(server.Host, opts...)
	default:
		opts := []connector.HTTPOption{connector.WithTimeout(timeout)}
		if server.Username != "" {
			opts = append(opts, connector.WithBasicAuth(server.Username, server.Password))
		} else if token != "" {
			opts = append(opts, connector.WithBearerToken(token))
		}
		return connector.NewHTTPConnector(server.Host, opts...), nil
	}
}

// FetchIndexes runs the INDEX stage (spec.md §4.8's fetch_indexes): always
// permitted, against the source connector.
func (c *Coordinator) FetchIndexes(ctx context.Context, filterPaths []string) error {
	return c.runStage(ctx, workspace.StageIndex, "", filterPaths, c.source)
}

// FetchData runs the FETCH stage (fetch_data), gated on INDEX having
// finished.
func (c *Coordinator) FetchData(ctx context.Context, filterPaths []string) error {
	return c.runStage(ctx, workspace.StageFetch, workspace.StageIndex, filterPaths, c.source)
}

// PushData runs the PUSH stage (push_data), gated on FETCH having
// finished.
func (c *Coordinator) PushData(ctx context.Context, filterPaths []string) error {
	return c.runStage(ctx, workspace.StagePush, workspace.StageFetch, filterPaths, c.target)
}

func (c *Coordinator) runStage(ctx context.Context, stageName, requiredPrior string, filterPaths []string, conn connector.Connector) error {
	if requiredPrior != "" {
		finished, err := c.ws.StageFinished(ctx, requiredPrior)
		if err != nil {
			return fmt.Errorf("checking %s precondition: %w", requiredPrior, err)
		}
		if !finished {
			return &PreconditionError{Stage: stageName, Required: requiredPrior}
		}
	}
	if conn == nil {
		return fmt.Errorf("%s stage requires a configured connector", stageName)
	}

	tree := DefaultTree(filterPaths)
	stage.RegisterDefaults(c.registry, filterPaths)
	if err := structure.Validate(tree, c.registry); err != nil {
		return fmt.Errorf("validating structure tree: %w", err)
	}
	c.tree = tree

	if err := c.ws.MarkStageStarted(ctx, stageName); err != nil {
		return fmt.Errorf("marking %s started: %w", stageName, err)
	}

	w := walker.New(walker.Deps{
		Registry: c.registry, Workspace: c.ws, Identity: c.identity,
		Connector: conn, FKResolver: c.resolver, Observer: c.observer,
	})

	var defaults walker.StageDefaults
	switch stageName {
	case workspace.StageIndex:
		defaults = stage.IndexDefaults()
	case workspace.StageFetch:
		defaults = stage.FetchDefaults()
	case workspace.StagePush:
		defaults = stage.PushDefaults()
	}

	if err := w.Run(ctx, tree, stageName, model.ParentChain{}, defaults); err != nil {
		return fmt.Errorf("%s stage: %w", stageName, err)
	}

	if err := c.ws.MarkStageFinished(ctx, stageName); err != nil {
		return fmt.Errorf("marking %s finished: %w", stageName, err)
	}
	return nil
}

// Close releases any resources the coordinator opened (currently just the
// optional foreign-key acceleration index).
func (c *Coordinator) Close() error {
	if c.fkIndex != nil {
		return c.fkIndex.Close()
	}
	return nil
}

// Observer returns the progress observer the coordinator reports through,
// for callers (e.g. internal/statusserver) that need to attach a listener.
func (c *Coordinator) Observer() progress.Observer {
	return c.observer
}
