package entity

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	entityrepo "github.com/Ramsey-B/sage/internal/repositories/entity"
	"github.com/Ramsey-B/sage/pkg/models"
)

var validate = validator.New()

// Register registers entity routes under the papers group
func Register(g *echo.Group) {
	g.GET("/:paperId/entities", List)
	g.POST("/:paperId/entities", Create)
	g.PATCH("/:paperId/entities/:id", Update)
	g.DELETE("/:paperId/entities/:id", Delete)
}

// List returns all entities of a paper at one processing version. The
// version query parameter pins the version; without it the paper's latest
// is used.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entity_handler.List")
	defer span.End()

	paperID := c.Param("paperId")
	if paperID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "paper id is required")
	}

	var version *int
	if raw := c.QueryParam("version"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "version must be a non-negative integer")
		}
		version = &parsed
	}

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	resp, err := repo.GetByPaper(ctx, paperID, version)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Create stores a new entity for a paper
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entity_handler.Create")
	defer span.End()

	paperID := c.Param("paperId")
	if paperID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "paper id is required")
	}

	var req models.CreateEntityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entity, err := repo.Create(ctx, paperID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, entity)
}

// Update applies a partial update to an entity
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entity_handler.Update")
	defer span.End()

	paperID := c.Param("paperId")
	entityID := c.Param("id")
	if paperID == "" || entityID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "paper id and entity id are required")
	}

	var patch models.EntityPatch
	if err := c.Bind(&patch); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&patch); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entity, err := repo.Update(ctx, paperID, entityID, &patch)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entity)
}

// Delete removes an entity and its data
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entity_handler.Delete")
	defer span.End()

	paperID := c.Param("paperId")
	entityID := c.Param("id")
	if paperID == "" || entityID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "paper id and entity id are required")
	}

	ctx, repo, err := ectoinject.GetContext[*entityrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Delete(ctx, paperID, entityID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
