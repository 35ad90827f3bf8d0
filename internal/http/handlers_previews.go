package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ottie/internal/queue"
	"ottie/internal/services"
	"ottie/internal/store"
)

func previewsFrom(c *fiber.Ctx) *services.Previews {
	svc, _ := c.Locals("previews").(*services.Previews)
	return svc
}

func loggerFrom(c *fiber.Ctx) *slog.Logger {
	logger, _ := c.Locals("logger").(*slog.Logger)
	return logger
}

// serviceError maps a service failure to a status code. Messages of
// internal errors are logged, never returned.
func serviceError(c *fiber.Ctx, err error) error {
	msg, ok := services.AsUserError(err)
	if !ok {
		if logger := loggerFrom(c); logger != nil {
			logger.Error("request_failed",
				"request_id", c.Locals("request_id"),
				"path", c.Path(),
				"error", err,
			)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "Something went wrong, please try again",
		})
	}

	status, code := fiber.StatusBadRequest, "BAD_REQUEST"
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrUnknownStep):
		status, code = fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, services.ErrNotReady), errors.Is(err, store.ErrInvalidTransition):
		status, code = fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, queue.ErrClosed):
		status, code = fiber.StatusServiceUnavailable, "QUEUE_UNAVAILABLE"
	case errors.Is(err, services.ErrInvalidURL):
		code = "INVALID_URL"
	}
	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Code:    code,
		Error:   msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false,
		Code:    "BAD_REQUEST",
		Error:   msg,
	})
}

func previewID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil && id != uuid.Nil
}

// generatePreviewHandler validates and enqueues a listing URL.
func generatePreviewHandler(c *fiber.Ctx) error {
	var req GeneratePreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := previewsFrom(c).Generate(c.UserContext(), req.URL)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(GeneratePreviewResponse{
		Success:       true,
		PreviewID:     res.PreviewID.String(),
		QueuePosition: res.QueuePosition,
	})
}

func previewStatusHandler(c *fiber.Ctx) error {
	id, ok := previewID(c)
	if !ok {
		return badRequest(c, "invalid preview id")
	}

	res, err := previewsFrom(c).Status(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(PreviewStatusResponse{
		Success:       true,
		Status:        string(res.Status),
		Phase:         string(res.Phase),
		QueuePosition: res.QueuePosition,
		Processing:    res.Processing,
		ErrorMessage:  res.ErrorMessage,
	})
}

// claimPreviewHandler turns a completed preview into a site. The caller
// has already checked workspace membership.
func claimPreviewHandler(c *fiber.Ctx) error {
	id, ok := previewID(c)
	if !ok {
		return badRequest(c, "invalid preview id")
	}
	var req ClaimPreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := previewsFrom(c).Claim(c.UserContext(), id, req.WorkspaceID, req.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(ClaimPreviewResponse{
		Success: true,
		SiteID:  res.SiteID.String(),
		Slug:    res.Slug,
	})
}

// debugPreviewHandler re-runs one stage from stored data.
func debugPreviewHandler(c *fiber.Ctx) error {
	id, ok := previewID(c)
	if !ok {
		return badRequest(c, "invalid preview id")
	}
	step := c.Params("op")

	p, err := previewsFrom(c).RunStage(c.UserContext(), id, step)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(DebugPreviewResponse{
		Success: true,
		Step:    step,
		Preview: previewItem(p),
	})
}
