// Package registry stores and resolves DID documents together with their
// document and resolution metadata.
//
// The Registry is the only entry point used by issuers and verifiers. It
// validates documents, enforces that a caller identity is present and hands
// the record to a Backend, which owns persistence and per-DID ownership.
// Resolution returns exactly what was last saved for a DID.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pilacorp/go-trackback-agent/did"
	"github.com/pilacorp/go-trackback-agent/logger"
)

var (
	// ErrRegistry is returned when a save or resolve cannot be completed:
	// the backend failed, the document is invalid or the caller is not allowed.
	ErrRegistry = errors.New("registry error")

	// ErrNotFound is returned when nothing was ever saved for a DID.
	ErrNotFound = errors.New("DID not found")

	// ErrUnauthorized is returned when the caller may not write a DID.
	ErrUnauthorized = errors.New("unauthorized")
)

// ResolutionRecord is the result of resolving a DID.
type ResolutionRecord struct {
	DIDDocument           *did.DIDDocument       `json:"did_document"`
	DIDDocumentMetadata   map[string]interface{} `json:"did_document_metadata"`
	DIDResolutionMetadata map[string]interface{} `json:"did_resolution_metadata"`
}

// Backend persists resolution records keyed by DID.
//
// Put upserts the record of rec.DIDDocument.ID. The first owner to publish a
// DID owns it; Put by any other owner fails with ErrUnauthorized.
// Get fails with ErrNotFound when the DID was never saved.
type Backend interface {
	Put(ctx context.Context, owner string, rec *ResolutionRecord) error
	Get(ctx context.Context, did string) (*ResolutionRecord, error)
}

// Registry mediates between callers and a Backend.
type Registry struct {
	backend Backend
	log     *logrus.Entry
}

// New returns a Registry over backend.
func New(backend Backend) *Registry {
	return &Registry{
		backend: backend,
		log:     logger.New("registry"),
	}
}

// Save publishes doc with its metadata on behalf of owner and returns the
// stored document. Saving again overwrites document and metadata.
func (r *Registry) Save(ctx context.Context, owner string, doc *did.DIDDocument, docMeta, resMeta map[string]interface{}) (*did.DIDDocument, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: %w: no account in context", ErrRegistry, ErrUnauthorized)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistry, err)
	}

	rec := &ResolutionRecord{
		DIDDocument:           doc.Clone(),
		DIDDocumentMetadata:   cloneMap(docMeta),
		DIDResolutionMetadata: cloneMap(resMeta),
	}

	if err := r.backend.Put(ctx, owner, rec); err != nil {
		r.log.WithField("did", doc.ID).WithError(err).Warn("save failed")
		return nil, registryError(fmt.Errorf("failed to save %s: %w", doc.ID, err))
	}

	entry := r.log.WithField("did", doc.ID)
	if hash, err := doc.Hash(); err == nil {
		entry = entry.WithField("hash", hash)
	}
	entry.Debug("DID document saved")

	return doc.Clone(), nil
}

// Resolve returns the record last saved for id.
func (r *Registry) Resolve(ctx context.Context, id string) (*ResolutionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty DID", ErrNotFound)
	}

	rec, err := r.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve %s: %w", id, err)
		}
		r.log.WithField("did", id).WithError(err).Warn("resolve failed")
		return nil, registryError(fmt.Errorf("failed to resolve %s: %w", id, err))
	}
	if rec == nil || rec.DIDDocument == nil {
		return nil, fmt.Errorf("%w: backend returned an empty record for %s", ErrRegistry, id)
	}

	r.log.WithField("did", id).Debug("DID resolved")

	return rec.Clone(), nil
}

func registryError(err error) error {
	if errors.Is(err, ErrRegistry) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRegistry, err)
}
