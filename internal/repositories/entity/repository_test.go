package entity

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/internal/repositories/version"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/schema"
	"github.com/Ramsey-B/sage/pkg/storage"
)

const testPaper = "arXiv:1911.08265"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestRepository(t *testing.T) (*Repository, *storage.MemoryStore) {
	t.Helper()
	logger := testLogger()
	store := storage.NewMemoryStore()
	versions := version.NewRepository(store, logger)
	emitter := events.NewEmitter(nil, logger)
	return NewRepository(store, versions, schema.NewDefaultGate(), emitter, logger), store
}

func intPtr(i int) *int { return &i }

func TestRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit version registers the version", func(t *testing.T) {
		repo, store := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSentence,
			Source:  "tex-pipeline",
			Version: intPtr(2),
			Attributes: models.Attributes{
				"text": models.String("Let x be a vector."),
			},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, 2, created.Version)
		assert.Equal(t, "tex-pipeline", created.Source)
		assert.True(t, created.Attributes["text"].Equal(models.String("Let x be a vector.")))

		versions, err := store.SelectVersions(ctx, storage.Filter{"paper_id": testPaper})
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, 2, versions[0].Version)
	})

	t.Run("no version resolvable fails the create", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		_, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:   models.EntityTypeSentence,
			Source: "tex-pipeline",
		})
		require.Error(t, err)
		assert.True(t, httperror.IsHTTPError(err))
		assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	})

	t.Run("missing version falls back to latest", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		_, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSentence,
			Source:  "tex-pipeline",
			Version: intPtr(3),
			Attributes: models.Attributes{
				"text": models.String("seed"),
			},
		})
		require.NoError(t, err)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:   models.EntityTypeSentence,
			Source: "tex-pipeline",
			Attributes: models.Attributes{
				"text": models.String("follows latest"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, created.Version)
	})

	t.Run("bounding boxes are stored", func(t *testing.T) {
		repo, store := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSymbol,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			BoundingBoxes: []models.BoundingBox{
				{Page: 3, Left: 0.1, Top: 0.2, Width: 0.05, Height: 0.01},
			},
		})
		require.NoError(t, err)
		require.Len(t, created.BoundingBoxes, 1)
		// boxes inherit the entity source when they carry none
		assert.Equal(t, "tex-pipeline", created.BoundingBoxes[0].Source)

		rows, err := store.SelectBoxes(ctx, storage.Filter{})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("list fields come back with empty defaults", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSymbol,
			Source:  "tex-pipeline",
			Version: intPtr(0),
		})
		require.NoError(t, err)
		nicknames, ok := created.Attributes["nicknames"]
		require.True(t, ok)
		assert.Equal(t, models.KindList, nicknames.Kind())
	})
}

func TestRepository_GetByPaper(t *testing.T) {
	ctx := context.Background()

	t.Run("no versions yields an empty result", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		resp, err := repo.GetByPaper(ctx, testPaper, nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Entities)
	})

	t.Run("reads all entities at the resolved version", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		sentence, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSentence,
			Source:  "tex-pipeline",
			Version: intPtr(1),
			Attributes: models.Attributes{
				"text": models.String("We define the loss L."),
			},
		})
		require.NoError(t, err)

		_, err = repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:   models.EntityTypeSymbol,
			Source: "tex-pipeline",
			Attributes: models.Attributes{
				"tex":       models.String("$L$"),
				"nicknames": models.StringList("the loss", "objective"),
			},
			Relationships: models.Relationships{
				"sentence": models.Rel(models.Reference{Type: models.EntityTypeSentence, ID: sentence.ID}),
			},
		})
		require.NoError(t, err)

		resp, err := repo.GetByPaper(ctx, testPaper, nil)
		require.NoError(t, err)
		assert.Equal(t, testPaper, resp.PaperID)
		assert.Equal(t, 1, resp.Version)
		require.Len(t, resp.Entities, 2)

		var symbol *models.Entity
		for i := range resp.Entities {
			if resp.Entities[i].Type == models.EntityTypeSymbol {
				symbol = &resp.Entities[i]
			}
		}
		require.NotNil(t, symbol)

		nicknames := symbol.Attributes["nicknames"].Items()
		require.Len(t, nicknames, 2)
		assert.Equal(t, "the loss", nicknames[0].StringValue())
		assert.Equal(t, "objective", nicknames[1].StringValue())

		rel := symbol.Relationships["sentence"]
		assert.Equal(t, sentence.ID, rel.Ref().ID)
		assert.Equal(t, models.EntityTypeSentence, rel.Ref().Type)
	})

	t.Run("explicit version filters entities", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		_, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSentence,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"text": models.String("old run"),
			},
		})
		require.NoError(t, err)

		_, err = repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSentence,
			Source:  "tex-pipeline",
			Version: intPtr(1),
			Attributes: models.Attributes{
				"text": models.String("new run"),
			},
		})
		require.NoError(t, err)

		resp, err := repo.GetByPaper(ctx, testPaper, intPtr(0))
		require.NoError(t, err)
		require.Len(t, resp.Entities, 1)
		assert.Equal(t, 0, resp.Version)
		assert.True(t, resp.Entities[0].Attributes["text"].Equal(models.String("old run")))

		resp, err = repo.GetByPaper(ctx, testPaper, nil)
		require.NoError(t, err)
		require.Len(t, resp.Entities, 1)
		assert.Equal(t, 1, resp.Version)
	})

	t.Run("entities failing validation are dropped", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		// a sentence without its required text fails the gate on read
		_, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSentence,
			Source:  "tex-pipeline",
			Version: intPtr(0),
		})
		require.NoError(t, err)

		_, err = repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:   models.EntityTypeEquation,
			Source: "tex-pipeline",
			Attributes: models.Attributes{
				"tex": models.String("$y = mx + b$"),
			},
		})
		require.NoError(t, err)

		resp, err := repo.GetByPaper(ctx, testPaper, nil)
		require.NoError(t, err)
		require.Len(t, resp.Entities, 1)
		assert.Equal(t, models.EntityTypeEquation, resp.Entities[0].Type)
	})

	t.Run("papers do not leak into each other", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		_, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeEquation,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"tex": models.String("$E = mc^2$"),
			},
		})
		require.NoError(t, err)

		resp, err := repo.GetByPaper(ctx, "arXiv:2004.14974", nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Entities)
	})
}

func TestRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("only touched keys are rewritten", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSymbol,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"tex":       models.String("$x$"),
				"mathml":    models.String("<mi>x</mi>"),
				"nicknames": models.StringList("input"),
			},
		})
		require.NoError(t, err)

		updated, err := repo.Update(ctx, testPaper, created.ID, &models.EntityPatch{
			Attributes: models.Attributes{
				"nicknames": models.StringList("feature", "observation"),
			},
		})
		require.NoError(t, err)

		// untouched keys survive
		assert.True(t, updated.Attributes["tex"].Equal(models.String("$x$")))
		assert.True(t, updated.Attributes["mathml"].Equal(models.String("<mi>x</mi>")))

		nicknames := updated.Attributes["nicknames"].Items()
		require.Len(t, nicknames, 2)
		assert.Equal(t, "feature", nicknames[0].StringValue())
		assert.Equal(t, "observation", nicknames[1].StringValue())
	})

	t.Run("empty list clears a key", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSymbol,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"nicknames": models.StringList("stale"),
			},
		})
		require.NoError(t, err)

		updated, err := repo.Update(ctx, testPaper, created.ID, &models.EntityPatch{
			Attributes: models.Attributes{
				"nicknames": models.List(),
			},
		})
		require.NoError(t, err)
		assert.Empty(t, updated.Attributes["nicknames"].Items())
	})

	t.Run("source and version move with the patch", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeEquation,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"tex": models.String("$a+b$"),
			},
		})
		require.NoError(t, err)

		newSource := "human-annotation"
		updated, err := repo.Update(ctx, testPaper, created.ID, &models.EntityPatch{
			Source:  &newSource,
			Version: intPtr(4),
		})
		require.NoError(t, err)
		assert.Equal(t, "human-annotation", updated.Source)
		assert.Equal(t, 4, updated.Version)
	})

	t.Run("bounding boxes replace wholesale", func(t *testing.T) {
		repo, store := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSymbol,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			BoundingBoxes: []models.BoundingBox{
				{Page: 1, Left: 0.1, Top: 0.1, Width: 0.1, Height: 0.1},
				{Page: 2, Left: 0.2, Top: 0.2, Width: 0.2, Height: 0.2},
			},
		})
		require.NoError(t, err)

		boxes := []models.BoundingBox{{Page: 5, Left: 0.5, Top: 0.5, Width: 0.5, Height: 0.5}}
		updated, err := repo.Update(ctx, testPaper, created.ID, &models.EntityPatch{
			BoundingBoxes: &boxes,
		})
		require.NoError(t, err)
		require.Len(t, updated.BoundingBoxes, 1)
		assert.Equal(t, 5, updated.BoundingBoxes[0].Page)

		rows, err := store.SelectBoxes(ctx, storage.Filter{})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("unknown entity is not found", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		_, err := repo.Update(ctx, testPaper, "999", &models.EntityPatch{})
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

		_, err = repo.Update(ctx, testPaper, "not-an-id", &models.EntityPatch{})
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the entity and its child rows", func(t *testing.T) {
		repo, store := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeSymbol,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"tex": models.String("$z$"),
			},
			BoundingBoxes: []models.BoundingBox{
				{Page: 1, Left: 0.1, Top: 0.1, Width: 0.1, Height: 0.1},
			},
		})
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, testPaper, created.ID))

		resp, err := repo.GetByPaper(ctx, testPaper, nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Entities)

		dataRows, err := store.SelectData(ctx, storage.Filter{})
		require.NoError(t, err)
		assert.Empty(t, dataRows)

		boxRows, err := store.SelectBoxes(ctx, storage.Filter{})
		require.NoError(t, err)
		assert.Empty(t, boxRows)
	})

	t.Run("wrong paper is not found", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		created, err := repo.Create(ctx, testPaper, &models.CreateEntityRequest{
			Type:    models.EntityTypeEquation,
			Source:  "tex-pipeline",
			Version: intPtr(0),
			Attributes: models.Attributes{
				"tex": models.String("$a$"),
			},
		})
		require.NoError(t, err)

		err = repo.Delete(ctx, "arXiv:2004.14974", created.ID)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		err := repo.Delete(ctx, testPaper, "abc")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}
