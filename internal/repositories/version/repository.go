// Package version resolves the processing version entity operations act on.
// Every paper carries a history of processing runs; reads and writes that
// name no explicit version resolve to the latest recorded one.
package version

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/sage/pkg/storage"
)

// Resolver is the version lookup surface the entity repository depends on.
type Resolver interface {
	Latest(ctx context.Context, paperID string) (int, bool, error)
	Ensure(ctx context.Context, paperID string, version int) error
}

// Repository resolves versions straight from the store.
type Repository struct {
	store  storage.Store
	logger ectologger.Logger
}

// NewRepository creates a new version repository
func NewRepository(store storage.Store, logger ectologger.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

// Latest returns the newest recorded version for a paper. The second return
// is false when the paper has no versions at all.
func (r *Repository) Latest(ctx context.Context, paperID string) (int, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "version.Repository.Latest")
	defer span.End()

	versions, err := r.store.SelectVersions(ctx, storage.Filter{"paper_id": paperID})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID}).Error("Failed to select paper versions")
		return 0, false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve paper version: %v", err)
	}
	if len(versions) == 0 {
		return 0, false, nil
	}
	// SelectVersions returns newest first
	return versions[0].Version, true, nil
}

// Ensure records a version for a paper if it is not known yet.
func (r *Repository) Ensure(ctx context.Context, paperID string, version int) error {
	ctx, span := tracing.StartSpan(ctx, "version.Repository.Ensure")
	defer span.End()

	versions, err := r.store.SelectVersions(ctx, storage.Filter{"paper_id": paperID})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID}).Error("Failed to select paper versions")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve paper version: %v", err)
	}
	for _, v := range versions {
		if v.Version == version {
			return nil
		}
	}

	if err := r.store.InsertVersion(ctx, storage.VersionRow{PaperID: paperID, Version: version, CreatedAt: time.Now().UTC()}); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "version": version}).Error("Failed to insert paper version")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to record paper version: %v", err)
	}
	return nil
}
