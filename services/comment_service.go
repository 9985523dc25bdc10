package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/policy"
)

type CommentService struct {
	base
}

func NewCommentService(opts Options) *CommentService {
	return &CommentService{base: newBase(opts, "comments")}
}

// ByTask returns the comments of an accessible task, newest first.
func (s *CommentService) ByTask(ctx context.Context, p policy.Principal, taskID uint) ([]models.Comment, error) {
	db := s.conn(ctx)
	task, err := findTask(db, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := canRead(db, p, task.List.Project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Forbidden("you do not have access to this task")
	}
	var comments []models.Comment
	err = db.Preload("Author").Where("task_id = ?", taskID).Order("created_at DESC, id DESC").Find(&comments).Error
	if err != nil {
		return nil, storeError(err, "")
	}
	return comments, nil
}

func (s *CommentService) Create(ctx context.Context, p policy.Principal, taskID uint, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, FieldInvalid("content", "content cannot be empty")
	}
	var comment models.Comment
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := findTask(tx, taskID)
		if err != nil {
			return err
		}
		member, err := isMember(tx, task.List.ProjectID, p.ID)
		if err != nil {
			return err
		}
		if !policy.CanContribute(p, task.List.Project, member) {
			return Forbidden("you are not allowed to comment on this task")
		}
		comment = models.Comment{TaskID: taskID, UserID: p.ID, Content: content}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		return tx.Preload("Author").First(&comment, comment.ID).Error
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	return &comment, nil
}

// Update edits the content. Only the author or an admin may do so.
func (s *CommentService) Update(ctx context.Context, p policy.Principal, id uint, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, FieldInvalid("content", "content cannot be empty")
	}
	var comment models.Comment
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&comment, id).Error; err != nil {
			return storeError(err, "comment not found")
		}
		if !policy.CanEditComment(p, &comment) {
			return Forbidden("only the author or an admin can edit this comment")
		}
		if err := tx.Model(&comment).Update("content", content).Error; err != nil {
			return err
		}
		return tx.Preload("Author").First(&comment, id).Error
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	return &comment, nil
}

func (s *CommentService) Delete(ctx context.Context, p policy.Principal, id uint) error {
	db := s.conn(ctx)
	var comment models.Comment
	if err := db.First(&comment, id).Error; err != nil {
		return storeError(err, "comment not found")
	}
	if !policy.CanEditComment(p, &comment) {
		return Forbidden("only the author or an admin can delete this comment")
	}
	if err := db.Delete(&comment).Error; err != nil {
		return storeError(err, "")
	}
	return nil
}
