package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskflow/middleware"
	"taskflow/services"
	"taskflow/utils"
)

type CreateListRequest struct {
	ProjectID uint   `json:"project_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=100"`
	Position  *int   `json:"position" validate:"omitempty,min=1"`
}

type UpdateListRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Position *int    `json:"position" validate:"omitempty,min=1"`
}

type ListController struct {
	Lists  *services.ListService
	Logger *logrus.Entry
}

func NewListController(lists *services.ListService, logger *logrus.Entry) *ListController {
	return &ListController{Lists: lists, Logger: logger.WithField("component", "lists")}
}

// GetListsByProject returns the lists of a project in position order
func (lc *ListController) GetListsByProject(c *fiber.Ctx) error {
	projectID, ok, err := paramID(c, "projectId")
	if !ok {
		return err
	}
	lists, err := lc.Lists.ByProject(c.UserContext(), middleware.Principal(c), projectID)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(lists)
}

// CreateList appends a list to a project
func (lc *ListController) CreateList(c *fiber.Ctx) error {
	var req CreateListRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	list, err := lc.Lists.Create(c.UserContext(), middleware.Principal(c), services.NewList{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Position:  req.Position,
	})
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.MessageResponse("List created", "list", list))
}

// UpdateList renames or moves a list
func (lc *ListController) UpdateList(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	var req UpdateListRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	list, err := lc.Lists.Update(c.UserContext(), middleware.Principal(c), id, services.ListUpdate{
		Name:     req.Name,
		Position: req.Position,
	})
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("List updated", "list", list))
}

// DeleteList deletes a list and its tasks
func (lc *ListController) DeleteList(c *fiber.Ctx) error {
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	if err := lc.Lists.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.MessageResponse("List deleted", "", nil))
}
