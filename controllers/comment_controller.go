package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/middleware"
	"taskflow/services"
	"taskflow/utils"
)

type CreateCommentRequest struct {
	TaskID  uint   `json:"task_id" validate:"required"`
	Content string `json:"content" validate:"required,max=5000"`
}

type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type CommentController struct {
	Comments *services.CommentService
	Logger   *logrus.Entry
}

func NewCommentController(comments *services.CommentService, logger *logrus.Entry) *CommentController {
	return &CommentController{Comments: comments, Logger: logger.WithField("component", "comments")}
}

// GetCommentsByTask returns the comments of a task, newest first
func (cc *CommentController) GetCommentsByTask(c *fiber.Ctx) error {
	taskID, ok, err := paramID(c, "taskId")
	if !ok {
		return err
	}
	comments, err := cc.Comments.ByTask(c.UserContext(), middleware.Principal(c), taskID)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(comments)
}

// CreateComment adds a comment to a task
func (cc *CommentController) CreateComment(c *fiber.Ctx) error {
	var req CreateCommentRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	comment, err := cc.Comments.Create(c.UserContext(), middleware.Principal(c), req.TaskID, req.Content)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.MessageResponse("Comment added", "comment", comment))
}

// UpdateComment edits a comment
func (cc *CommentController) UpdateComment(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req UpdateCommentRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	comment, err := cc.Comments.Update(c.UserContext(), middleware.Principal(c), id, req.Content)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("Comment updated", "comment", comment))
}

// DeleteComment deletes a comment
func (cc *CommentController) DeleteComment(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	if err := cc.Comments.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("Comment deleted", "", nil))
}
