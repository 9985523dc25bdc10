package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/policy"
	"taskflow/realtime"
)

// TaskService handles tasks inside lists: ordering, assignment rules, the
// done timestamp and the authorized task queries.
type TaskService struct {
	base
}

func NewTaskService(opts Options) *TaskService {
	return &TaskService{base: newBase(opts, "tasks")}
}

// TaskFilter narrows the all-tasks query. Empty fields do not filter.
type TaskFilter struct {
	Search     string
	Priority   string
	Status     string
	AssignedTo *uint
	Deadline   string
}

type NewTask struct {
	ListID      uint
	Title       string
	Description *string
	Priority    models.TaskPriority
	AssignedTo  *uint
	Deadline    *string
}

type TaskUpdate struct {
	Title       *string
	Description Optional[string]
	Priority    *models.TaskPriority
	AssignedTo  Optional[uint]
	Deadline    Optional[string]
	Status      *models.TaskStatus
	Position    *int
	ListID      *uint
}

// managerOnly reports whether the update touches fields an assignee may not
// change. An unchanged list or position echoed back by the client does not count.
func (u TaskUpdate) managerOnly(task *models.Task) bool {
	if u.Title != nil || u.Priority != nil || u.AssignedTo.Set || u.Deadline.Set {
		return true
	}
	if u.ListID != nil && *u.ListID != task.ListID {
		return true
	}
	return u.Position != nil && *u.Position != task.Position
}

// Search returns the tasks matching every given filter, restricted to the
// projects the caller can see. Inaccessible tasks are left out, not reported.
func (s *TaskService) Search(ctx context.Context, p policy.Principal, f TaskFilter) ([]models.Task, error) {
	db := s.conn(ctx)
	q := db.Model(&models.Task{}).Preload("Assignee").Preload("List.Project")

	if search := strings.TrimSpace(f.Search); search != "" {
		q = q.Where(`LOWER(title) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(search))+"%")
	}
	if f.Priority != "" {
		priority := models.TaskPriority(f.Priority)
		if !priority.Valid() {
			return nil, FieldInvalid("priority", "priority must be high, medium or low")
		}
		q = q.Where("priority = ?", priority)
	}
	if f.Status != "" {
		status := models.TaskStatus(f.Status)
		if !status.Valid() {
			return nil, FieldInvalid("status", "status must be planned, in_progress or done")
		}
		q = q.Where("status = ?", status)
	}
	if f.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *f.AssignedTo)
	}
	if f.Deadline != "" {
		deadline, err := time.ParseInLocation(dateLayout, f.Deadline, time.UTC)
		if err != nil {
			return nil, FieldInvalid("deadline", "deadline must be a date in YYYY-MM-DD format")
		}
		q = q.Where("deadline = ?", deadline)
	}

	if !p.IsAdmin() {
		listIDs := db.Model(&models.List{}).Select("id").Where("project_id IN (?)", accessibleProjectIDs(db, p))
		q = q.Where("list_id IN (?)", listIDs)
	}

	var tasks []models.Task
	if err := q.Order("position ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, storeError(err, "")
	}
	return tasks, nil
}

// ByList returns the tasks of one list in position order.
func (s *TaskService) ByList(ctx context.Context, p policy.Principal, listID uint) ([]models.Task, error) {
	db := s.conn(ctx)
	list, err := findList(db, listID, false)
	if err != nil {
		return nil, err
	}
	ok, err := canRead(db, p, list.Project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Forbidden("you do not have access to this project")
	}
	var tasks []models.Task
	err = db.Preload("Assignee").Where("list_id = ?", listID).Order("position ASC, id ASC").Find(&tasks).Error
	if err != nil {
		return nil, storeError(err, "")
	}
	return tasks, nil
}

// Get returns a task with its assignee, list and project.
func (s *TaskService) Get(ctx context.Context, p policy.Principal, id uint) (*models.Task, error) {
	db := s.conn(ctx)
	task, err := findTask(db, id)
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
	return task, nil
}

// checkProjectDeadline rejects a task deadline after the project deadline.
func checkProjectDeadline(project *models.Project, deadline *time.Time) error {
	projectDeadline := project.DeadlineTime()
	if deadline == nil || projectDeadline == nil {
		return nil
	}
	if deadline.After(*projectDeadline) {
		return FieldInvalid("deadline", fmt.Sprintf("task deadline cannot be after the project deadline (%s)",
			projectDeadline.Format(dateLayout)))
	}
	return nil
}

func checkAssignee(tx *gorm.DB, userID uint) error {
	exists, err := userExists(tx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return FieldInvalid("assigned_to", "assigned user does not exist")
	}
	return nil
}

// Create adds a task at the end of a list. Callers outside the manager class
// always become the assignee of the tasks they create.
func (s *TaskService) Create(ctx context.Context, p policy.Principal, in NewTask) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, FieldInvalid("title", "title is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, FieldInvalid("priority", "priority must be high, medium or low")
	}
	var deadline *time.Time
	if in.Deadline != nil {
		var err error
		if deadline, err = s.parseDeadline("deadline", *in.Deadline); err != nil {
			return nil, err
		}
	}

	task := models.Task{
		ListID:      in.ListID,
		Title:       title,
		Description: in.Description,
		Priority:    in.Priority,
		Deadline:    toDate(deadline),
		Status:      models.StatusPlanned,
	}
	var projectID uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		list, err := findList(tx, in.ListID, true)
		if err != nil {
			return err
		}
		project := list.Project
		projectID = project.ID
		member, err := isMember(tx, project.ID, p.ID)
		if err != nil {
			return err
		}
		if !policy.CanContribute(p, project, member) {
			return Forbidden("you are not allowed to create tasks in this project")
		}
		if err := checkProjectDeadline(project, deadline); err != nil {
			return err
		}

		if policy.HasManagerAccess(p, project) {
			if in.AssignedTo != nil {
				if err := checkAssignee(tx, *in.AssignedTo); err != nil {
					return err
				}
			}
			task.AssignedTo = in.AssignedTo
		} else {
			self := p.ID
			task.AssignedTo = &self
		}

		if task.Position, err = nextPosition(tx, &models.Task{}, "list_id", list.ID); err != nil {
			return err
		}
		return tx.Create(&task).Error
	})
	if err != nil {
		return nil, storeError(err, "")
	}

	s.logger.WithFields(map[string]interface{}{
		"task_id":    task.ID,
		"list_id":    task.ListID,
		"created_by": p.ID,
	}).Info("Task created")
	s.publish(realtime.TaskCreated, projectID, task)
	return &task, nil
}

// Update applies a partial change. The manager class may change any field,
// the current assignee only description and status. Entering done stamps
// completed_at; leaving done keeps it.
func (s *TaskService) Update(ctx context.Context, p policy.Principal, id uint, in TaskUpdate) (*models.Task, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, FieldInvalid("title", "title cannot be empty")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, FieldInvalid("priority", "priority must be high, medium or low")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, FieldInvalid("status", "status must be planned, in_progress or done")
	}
	if in.Position != nil && *in.Position < 0 {
		return nil, FieldInvalid("position", "position cannot be negative")
	}
	var deadline *time.Time
	if in.Deadline.Set && in.Deadline.Value != nil {
		var err error
		if deadline, err = s.parseDeadline("deadline", *in.Deadline.Value); err != nil {
			return nil, err
		}
	}

	var task *models.Task
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = findTask(tx, id)
		if err != nil {
			return err
		}
		project := task.List.Project

		switch policy.TaskUpdateScope(p, project, task) {
		case policy.TaskScopeNone:
			return Forbidden("you are not allowed to modify this task")
		case policy.TaskScopeAssignee:
			if in.managerOnly(task) {
				return Forbidden("assignees may only change the description and status of a task")
			}
		}

		updates := map[string]interface{}{}
		if in.Title != nil {
			updates["title"] = strings.TrimSpace(*in.Title)
		}
		if in.Description.Set {
			updates["description"] = in.Description.Value
		}
		if in.Priority != nil {
			updates["priority"] = *in.Priority
		}
		if in.AssignedTo.Set {
			if in.AssignedTo.Value != nil {
				if err := checkAssignee(tx, *in.AssignedTo.Value); err != nil {
					return err
				}
			}
			updates["assigned_to"] = in.AssignedTo.Value
		}
		if in.Deadline.Set {
			if deadline == nil {
				updates["deadline"] = nil
			} else {
				if err := checkProjectDeadline(project, deadline); err != nil {
					return err
				}
				updates["deadline"] = toDate(deadline)
			}
		}

		status := in.Status
		if in.ListID != nil && *in.ListID != task.ListID {
			target, err := findList(tx, *in.ListID, true)
			if err != nil {
				return err
			}
			if target.ProjectID != task.List.ProjectID {
				return FieldInvalid("list_id", "a task can only move to a list of the same project")
			}
			updates["list_id"] = target.ID
			if in.Position == nil {
				next, err := nextPosition(tx, &models.Task{}, "list_id", target.ID)
				if err != nil {
					return err
				}
				updates["position"] = next
			}
			if status == nil && s.keywords != nil {
				if derived, ok := s.keywords.StatusForList(target.Name); ok {
					status = &derived
				}
			}
		}
		if in.Position != nil {
			updates["position"] = *in.Position
		}
		if status != nil {
			updates["status"] = *status
			if *status == models.StatusDone && task.Status != models.StatusDone {
				updates["completed_at"] = s.now().UTC()
			}
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		task, err = findTask(tx, id)
		return err
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	s.publish(realtime.TaskUpdated, task.List.ProjectID, task)
	return task, nil
}

// Delete removes the task and its comments.
func (s *TaskService) Delete(ctx context.Context, p policy.Principal, id uint) error {
	var projectID uint
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := findTask(tx, id)
		if err != nil {
			return err
		}
		if !policy.CanDeleteTask(p, task.List.Project) {
			return Forbidden("only project managers can delete tasks")
		}
		projectID = task.List.ProjectID
		return deleteTasksWhere(tx, "id = ?", id)
	})
	if err != nil {
		return storeError(err, "")
	}
	s.publish(realtime.TaskDeleted, projectID, map[string]uint{"id": id})
	return nil
}
