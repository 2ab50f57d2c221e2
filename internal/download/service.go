// Package download saves resolved documents: it resolves an identifier,
// writes the content to a blob store, records the resolution in the ledger
// and publishes a completion event.
package download

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docresolver/internal/document"
)

// Resolver is the part of resolver.Resolver the service depends on.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (document.FetchResult, error)
	Mirrors() []string
}

// ResolverFactory builds a fresh Resolver, with its own copy of the mirror
// directory, for a single Save.
type ResolverFactory func() Resolver

// Config controls Service behavior.
type Config struct {
	ContentType string
	// Prefix is joined in front of every stored name.
	Prefix string
	// Topic receives completion events; empty disables publishing.
	Topic string
}

// Deps groups the collaborators of a Service. Exactly one of Resolver and
// NewResolver is required; Records and Publisher are optional.
type Deps struct {
	// Resolver is shared by every Save, so rotations persist between calls.
	Resolver Resolver
	// NewResolver is called once per Save; rotations end with the call.
	NewResolver ResolverFactory
	Blobs       document.BlobStore
	Records     document.RecordStore
	Publisher   document.Publisher
	Clock       document.Clock
	IDs         document.IDGenerator
}

// Service saves documents. With a shared Resolver, calls are serialized
// because the resolver owns a mutable mirror directory.
type Service struct {
	mu     sync.Mutex
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Service.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if (deps.Resolver == nil) == (deps.NewResolver == nil) {
		return nil, fmt.Errorf("exactly one of resolver and resolver factory is required")
	}
	if deps.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Records != nil && deps.IDs == nil {
		return nil, fmt.Errorf("id generator is required when recording resolutions")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = document.DefaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, cfg: cfg, logger: logger.Named("download")}, nil
}

// Save resolves identifier and stores the document as name, or under the
// derived name when name is empty. It returns the stored location. An
// identifier that cannot be found is logged and yields ("", nil).
func (s *Service) Save(ctx context.Context, identifier, name string) (string, error) {
	res, release := s.acquire()
	defer release()

	start := s.deps.Clock.Now()
	result, err := res.Resolve(ctx, identifier)
	if err != nil {
		if document.IsNotFound(err) {
			s.logger.Error("identifier not found",
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			return "", nil
		}
		return "", fmt.Errorf("resolve %s: %w", identifier, err)
	}

	if strings.TrimSpace(name) == "" {
		name = result.DerivedName
	}
	location, err := s.deps.Blobs.PutObject(ctx, s.objectPath(name), s.cfg.ContentType, bytes.NewReader(result.Content))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	s.logger.Info("document saved",
		zap.String("identifier", identifier),
		zap.String("mirror", result.Mirror),
		zap.String("url", result.SourceURL),
		zap.String("location", location),
	)

	s.recordAndPublish(ctx, result, name, location, s.deps.Clock.Now().Sub(start))
	return location, nil
}

// Mirrors returns the mirrors the next Save starts from.
func (s *Service) Mirrors() []string {
	res, release := s.acquire()
	defer release()
	return res.Mirrors()
}

func (s *Service) acquire() (Resolver, func()) {
	if s.deps.NewResolver != nil {
		return s.deps.NewResolver(), func() {}
	}
	s.mu.Lock()
	return s.deps.Resolver, s.mu.Unlock
}

func (s *Service) objectPath(name string) string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// recordAndPublish runs after the document is stored; its failures are logged
// and do not undo the save.
func (s *Service) recordAndPublish(
	ctx context.Context,
	result document.FetchResult,
	name string,
	location string,
	elapsed time.Duration,
) {
	record := document.ResolutionRecord{
		Identifier:  result.Identifier.Raw(),
		Kind:        result.Identifier.Kind(),
		SourceURL:   result.SourceURL,
		Mirror:      result.Mirror,
		Name:        name,
		Location:    location,
		Hash:        result.Hash,
		SizeBytes:   int64(len(result.Content)),
		ResolvedAt:  s.deps.Clock.Now(),
		DurationMs:  elapsed.Milliseconds(),
		ContentType: s.cfg.ContentType,
	}
	if s.deps.Records != nil {
		if err := s.storeRecord(ctx, &record); err != nil {
			s.logger.Warn("record resolution failed",
				zap.String("identifier", record.Identifier),
				zap.Error(err),
			)
		}
	}
	if s.cfg.Topic == "" || s.deps.Publisher == nil {
		return
	}
	msgID, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, newEvent(record))
	if err != nil {
		s.logger.Warn("publish resolution event failed",
			zap.String("identifier", record.Identifier),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("resolution event published",
		zap.String("identifier", record.Identifier),
		zap.String("message_id", msgID),
	)
}

func (s *Service) storeRecord(ctx context.Context, record *document.ResolutionRecord) error {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}
	record.ID = id
	if err := s.deps.Records.StoreResolution(ctx, *record); err != nil {
		return fmt.Errorf("store resolution: %w", err)
	}
	return nil
}
