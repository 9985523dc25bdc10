package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/policy"
	"taskflow/realtime"
)

// ListService maintains the ordered stages of a project.
type ListService struct {
	base
}

func NewListService(opts Options) *ListService {
	return &ListService{base: newBase(opts, "lists")}
}

type NewList struct {
	ProjectID uint
	Name      string
	// Position is assigned as max+1 when nil
	Position *int
}

type ListUpdate struct {
	Name     *string
	Position *int
}

// ByProject returns the lists of an accessible project in position order.
func (s *ListService) ByProject(ctx context.Context, p policy.Principal, projectID uint) ([]models.List, error) {
	db := s.conn(ctx)
	project, err := findProject(db, projectID, false)
	if err != nil {
		return nil, err
	}
	ok, err := canRead(db, p, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Forbidden("you do not have access to this project")
	}
	var lists []models.List
	if err := db.Where("project_id = ?", projectID).Order("position ASC").Find(&lists).Error; err != nil {
		return nil, storeError(err, "")
	}
	return lists, nil
}

// Create appends a list to the project. The project row stays locked while
// the next position is computed and the list inserted.
func (s *ListService) Create(ctx context.Context, p policy.Principal, in NewList) (*models.List, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, FieldInvalid("name", "name is required")
	}
	if in.Position != nil && *in.Position < 1 {
		return nil, FieldInvalid("position", "position must be at least 1")
	}

	list := models.List{ProjectID: in.ProjectID, Name: name}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := findProject(tx, in.ProjectID, true)
		if err != nil {
			return err
		}
		if !policy.CanManageLists(p, project) {
			return Forbidden("only the project creator or an admin can manage lists")
		}
		if in.Position != nil {
			list.Position = *in.Position
		} else {
			list.Position, err = nextPosition(tx, &models.List{}, "project_id", project.ID)
			if err != nil {
				return err
			}
		}
		return tx.Create(&list).Error
	})
	if err != nil {
		return nil, listStoreError(err)
	}
	s.publish(realtime.ListCreated, list.ProjectID, list)
	return &list, nil
}

func (s *ListService) Update(ctx context.Context, p policy.Principal, id uint, in ListUpdate) (*models.List, error) {
	if in.Position != nil && *in.Position < 1 {
		return nil, FieldInvalid("position", "position must be at least 1")
	}
	var list *models.List
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		list, err = findList(tx, id, true)
		if err != nil {
			return err
		}
		if !policy.CanManageLists(p, list.Project) {
			return Forbidden("only the project creator or an admin can manage lists")
		}
		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return FieldInvalid("name", "name cannot be empty")
			}
			updates["name"] = name
		}
		if in.Position != nil && *in.Position != list.Position {
			updates["position"] = *in.Position
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.List{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		list, err = findList(tx, id, false)
		return err
	})
	if err != nil {
		return nil, listStoreError(err)
	}
	s.publish(realtime.ListUpdated, list.ProjectID, list)
	return list, nil
}

// Delete removes the list together with its tasks and their comments.
func (s *ListService) Delete(ctx context.Context, p policy.Principal, id uint) error {
	var projectID uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		list, err := findList(tx, id, true)
		if err != nil {
			return err
		}
		if !policy.CanManageLists(p, list.Project) {
			return Forbidden("only the project creator or an admin can manage lists")
		}
		projectID = list.ProjectID
		if err := deleteTasksWhere(tx, "list_id = ?", id); err != nil {
			return err
		}
		return tx.Delete(&models.List{}, id).Error
	})
	if err != nil {
		return storeError(err, "")
	}
	s.publish(realtime.ListDeleted, projectID, map[string]uint{"id": id})
	return nil
}

// listStoreError reports a (project_id, position) collision as a conflict
// naming the position.
func listStoreError(err error) error {
	err = storeError(err, "")
	if KindOf(err) == KindConflict {
		return Conflict("a list already occupies this position in the project")
	}
	return err
}
