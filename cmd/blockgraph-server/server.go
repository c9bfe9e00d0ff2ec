package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/flowgraph/blockgraph/internal/app/draftsync"
	"github.com/flowgraph/blockgraph/internal/app/dto"
	"github.com/flowgraph/blockgraph/internal/app/workflow"
	"github.com/flowgraph/blockgraph/internal/config"
	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/blockgraph/pkg/validation"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// server holds the handler dependencies.
type server struct {
	drafts  *draftsync.Client
	table   capability.Table
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// newApp builds the fiber app with every route registered.
func newApp(s *server, cfg config.ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:         "blockgraph",
		BodyLimit:       cfg.BodyLimit,
		StructValidator: validation.NewStructValidator(validation.DefaultValidationConfig()),
	})

	app.Use(s.instrument)

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	apps := app.Group("/apps/:id/workflows")
	apps.Get("/draft", s.getDraft)
	apps.Post("/draft", s.syncDraft)
	apps.Post("/draft/layout", s.layoutDraft)
	apps.Get("/draft/variables/used", s.variableUsage)
	apps.Post("/draft/variables/rename", s.renameVariable)
	apps.Post("/draft/variables/remove", s.removeVariable)
	apps.Get("/publish", s.getPublished)
	apps.Post("/publish", s.publish)

	return app
}

// instrument records request counts and latency per matched route.
func (s *server) instrument(c fiber.Ctx) error {
	began := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}
	s.metrics.RecordHTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(began))
	return err
}

func (s *server) context(c fiber.Ctx) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(c.Context())
	}
	return context.WithTimeout(c.Context(), s.timeout)
}

func (s *server) newWorkflow() *workflow.Workflow {
	return workflow.New(
		workflow.WithCapabilities(s.table),
		workflow.WithLogger(s.logger),
		workflow.WithMetrics(s.metrics),
	)
}

func (s *server) getDraft(c fiber.Ctx) error {
	ctx, cancel := s.context(c)
	defer cancel()

	d, err := s.drafts.Fetch(ctx, c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(dto.NewDraftResponse(d))
}

func (s *server) syncDraft(c fiber.Ctx) error {
	var req dto.SyncDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return s.badRequest(c, err)
	}

	ctx, cancel := s.context(c)
	defer cancel()

	hash, err := s.drafts.Sync(ctx, c.Params("id"), req.Graph, req.Features, req.Hash)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(dto.SyncDraftResponse{Result: "success", Hash: hash, UpdatedAt: time.Now().UTC()})
}

func (s *server) layoutDraft(c fiber.Ctx) error {
	var req dto.HashRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return s.badRequest(c, err)
		}
	}

	return s.rewrite(c, req.Hash, func(w *workflow.Workflow) []string {
		w.ApplyAutoLayout()
		return ids(w.Snapshot().Nodes())
	})
}

func (s *server) renameVariable(c fiber.Ctx) error {
	var req dto.RenameVariableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return s.badRequest(c, err)
	}

	return s.rewrite(c, req.Hash, func(w *workflow.Workflow) []string {
		return w.RenameVariable(req.From, req.To)
	})
}

func (s *server) removeVariable(c fiber.Ctx) error {
	var req dto.RemoveVariableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return s.badRequest(c, err)
	}

	return s.rewrite(c, req.Hash, func(w *workflow.Workflow) []string {
		return w.RemoveVariable(req.Selector)
	})
}

// rewrite loads the draft into a workflow, applies edit and saves the result
// when edit reports changed nodes. Without a client hash the fetched one
// guards the save.
func (s *server) rewrite(c fiber.Ctx, hash string, edit func(w *workflow.Workflow) []string) error {
	ctx, cancel := s.context(c)
	defer cancel()

	appID := c.Params("id")
	w := s.newWorkflow()
	d, err := s.drafts.RestoreExisting(ctx, appID, w)
	if err != nil {
		return s.fail(c, err)
	}
	if hash == "" {
		hash = d.Hash
	}

	changed := edit(w)
	resp := dto.RewriteResponse{Hash: d.Hash, Nodes: changed, Graph: w.Record()}
	if resp.Nodes == nil {
		resp.Nodes = []string{}
	}
	if len(changed) == 0 {
		return c.JSON(resp)
	}

	resp.Hash, err = s.drafts.SyncWorkflow(ctx, appID, w, d.Features, hash)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

func (s *server) variableUsage(c fiber.Ctx) error {
	sel, err := graph.ParseSelector(c.Query("selector"))
	if err != nil {
		return s.badRequest(c, err)
	}

	ctx, cancel := s.context(c)
	defer cancel()

	w := s.newWorkflow()
	if _, err := s.drafts.RestoreExisting(ctx, c.Params("id"), w); err != nil {
		return s.fail(c, err)
	}

	nodes := ids(w.ReferencingNodes(sel))
	return c.JSON(dto.VariableUsageResponse{
		Selector: sel,
		Used:     w.IsSelectorStillUsed(sel),
		Nodes:    nodes,
	})
}

func (s *server) getPublished(c fiber.Ctx) error {
	ctx, cancel := s.context(c)
	defer cancel()

	d, err := s.drafts.Published(ctx, c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(dto.NewDraftResponse(d))
}

func (s *server) publish(c fiber.Ctx) error {
	ctx, cancel := s.context(c)
	defer cancel()

	d, err := s.drafts.Publish(ctx, c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(dto.NewDraftResponse(d))
}

func (s *server) badRequest(c fiber.Ctx, err error) error {
	resp := dto.ErrorResponse{Error: err.Error()}
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "validation failed"
		resp.Fields = verrs
	}
	return c.Status(fiber.StatusBadRequest).JSON(resp)
}

// fail maps domain errors to HTTP statuses.
func (s *server) fail(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	resp := dto.ErrorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, draft.ErrDraftConflict):
		status = fiber.StatusConflict
		resp.Error = "draft_workflow_not_sync"
	case errors.Is(err, draft.ErrDraftNotFound), errors.Is(err, draft.ErrNotPublished):
		status = fiber.StatusNotFound
	case errors.Is(err, draft.ErrInvalidAppID):
		status = fiber.StatusBadRequest
	case errors.Is(err, draftsync.ErrInvalidGraph):
		status = fiber.StatusUnprocessableEntity
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			resp.Fields = verrs
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(resp)
}

func ids(nodes []graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}
