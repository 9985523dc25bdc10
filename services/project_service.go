package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/policy"
	"taskflow/realtime"
)

// ProjectService owns projects, their membership registry and the default
// list seeding.
type ProjectService struct {
	base
}

func NewProjectService(opts Options) *ProjectService {
	return &ProjectService{base: newBase(opts, "projects")}
}

type NewProject struct {
	Name        string
	Description *string
	Deadline    *string
}

type ProjectUpdate struct {
	Name        *string
	Description Optional[string]
	Deadline    Optional[string]
	Status      *models.ProjectStatus
}

// ProjectStats backs the dashboard progress view of one project.
type ProjectStats struct {
	ProjectID         uint                          `json:"project_id"`
	TotalTasks        int64                         `json:"total_tasks"`
	ByStatus          map[models.TaskStatus]int64   `json:"by_status"`
	ByPriority        map[models.TaskPriority]int64 `json:"by_priority"`
	OverdueTasks      int64                         `json:"overdue_tasks"`
	CompletionPercent float64                       `json:"completion_percent"`
}

// List returns every project for admins, otherwise the projects the caller
// created or is a member of.
func (s *ProjectService) List(ctx context.Context, p policy.Principal) ([]models.Project, error) {
	db := s.conn(ctx)
	q := db.Preload("Creator").Order("created_at DESC, id DESC")
	if !p.IsAdmin() {
		memberOf := db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", p.ID)
		q = q.Where("created_by = ? OR id IN (?)", p.ID, memberOf)
	}
	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		return nil, storeError(err, "")
	}
	return projects, nil
}

// Get returns one project with its creator, members and lists in position order.
func (s *ProjectService) Get(ctx context.Context, p policy.Principal, id uint) (*models.Project, error) {
	db := s.conn(ctx)
	project, err := findProject(db, id, false)
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
	if err := s.expand(db, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) expand(db *gorm.DB, project *models.Project) error {
	var creator models.User
	if err := db.First(&creator, project.CreatedBy).Error; err != nil {
		return storeError(err, "project creator not found")
	}
	project.Creator = &creator

	var members []models.UserSummary
	err := db.Model(&models.User{}).
		Select("users.id, users.name, users.email").
		Joins("JOIN project_members ON project_members.user_id = users.id").
		Where("project_members.project_id = ?", project.ID).
		Order("project_members.added_at ASC, users.id ASC").
		Scan(&members).Error
	if err != nil {
		return storeError(err, "")
	}
	project.Members = members

	var lists []models.List
	if err := db.Where("project_id = ?", project.ID).Order("position ASC").Find(&lists).Error; err != nil {
		return storeError(err, "")
	}
	project.Lists = lists
	return nil
}

// Create inserts the project, records the creator as a member and seeds the
// default lists in one transaction.
func (s *ProjectService) Create(ctx context.Context, p policy.Principal, in NewProject) (*models.Project, error) {
	if !p.IsManagerRole() {
		return nil, Forbidden("only project managers and admins can create projects")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, FieldInvalid("name", "name is required")
	}
	project := models.Project{
		Name:        name,
		Description: in.Description,
		CreatedBy:   p.ID,
		Status:      models.ProjectActive,
	}
	if in.Deadline != nil {
		deadline, err := s.parseDeadline("deadline", *in.Deadline)
		if err != nil {
			return nil, err
		}
		project.Deadline = toDate(deadline)
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		member := models.ProjectMember{ProjectID: project.ID, UserID: p.ID}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		lists := make([]models.List, len(models.DefaultListNames))
		for i, listName := range models.DefaultListNames {
			lists[i] = models.List{ProjectID: project.ID, Name: listName, Position: i + 1}
		}
		if err := tx.Create(&lists).Error; err != nil {
			return err
		}
		project.Lists = lists
		return nil
	})
	if err != nil {
		return nil, storeError(err, "")
	}

	s.logger.WithFields(map[string]interface{}{
		"project_id": project.ID,
		"created_by": p.ID,
	}).Info("Project created")
	return &project, nil
}

func (s *ProjectService) Update(ctx context.Context, p policy.Principal, id uint, in ProjectUpdate) (*models.Project, error) {
	var project *models.Project
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = findProject(tx, id, true)
		if err != nil {
			return err
		}
		if !policy.CanModifyProject(p, project) {
			return Forbidden("you are not allowed to modify this project")
		}

		updates := map[string]interface{}{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return FieldInvalid("name", "name cannot be empty")
			}
			updates["name"] = name
		}
		if in.Description.Set {
			updates["description"] = in.Description.Value
		}
		if in.Deadline.Set {
			if in.Deadline.Value == nil {
				updates["deadline"] = nil
			} else {
				deadline, err := s.parseDeadline("deadline", *in.Deadline.Value)
				if err != nil {
					return err
				}
				updates["deadline"] = toDate(deadline)
			}
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return FieldInvalid("status", "status must be active or archived")
			}
			updates["status"] = *in.Status
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(project).Updates(updates).Error; err != nil {
			return err
		}
		project, err = findProject(tx, id, false)
		return err
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	s.publish(realtime.ProjectUpdated, project.ID, project)
	return project, nil
}

// Delete removes the project with its lists, tasks, comments and members.
func (s *ProjectService) Delete(ctx context.Context, p policy.Principal, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := findProject(tx, id, true)
		if err != nil {
			return err
		}
		if !policy.CanModifyProject(p, project) {
			return Forbidden("you are not allowed to delete this project")
		}
		return deleteProjectTree(tx, id)
	})
	if err != nil {
		return storeError(err, "")
	}
	s.logger.WithFields(map[string]interface{}{"project_id": id, "deleted_by": p.ID}).Info("Project deleted")
	s.publish(realtime.ProjectDeleted, id, map[string]uint{"id": id})
	return nil
}

// AddMember grants a user access to the project.
func (s *ProjectService) AddMember(ctx context.Context, p policy.Principal, projectID, userID uint) (*models.ProjectMember, error) {
	var member models.ProjectMember
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := findProject(tx, projectID, true)
		if err != nil {
			return err
		}
		if !policy.CanManageMembers(p, project) {
			return Forbidden("only the project creator or an admin can add members")
		}
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return storeError(err, "user not found")
		}
		exists, err := isMember(tx, projectID, userID)
		if err != nil {
			return err
		}
		if exists {
			return Conflict("user is already a member of this project")
		}
		member = models.ProjectMember{ProjectID: projectID, UserID: userID}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		member.User = &user
		return nil
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	s.logger.WithFields(map[string]interface{}{"project_id": projectID, "user_id": userID}).Info("Member added")
	s.publish(realtime.MemberAdded, projectID, member.User.Summary())
	return &member, nil
}

// RemoveMember revokes membership. The removed user's tasks in the project
// that are not done are reassigned to the caller; done tasks keep their assignee.
func (s *ProjectService) RemoveMember(ctx context.Context, p policy.Principal, projectID, userID uint) (int64, error) {
	var (
		reassigned int64
		revoke     []uint
	)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := findProject(tx, projectID, true)
		if err != nil {
			return err
		}
		if !policy.CanManageMembers(p, project) {
			return Forbidden("only the project creator or an admin can remove members")
		}
		exists, err := isMember(tx, projectID, userID)
		if err != nil {
			return err
		}
		if !exists {
			return NotFound("user is not a member of this project")
		}

		listIDs := tx.Model(&models.List{}).Select("id").Where("project_id = ?", projectID)
		res := tx.Model(&models.Task{}).
			Where("list_id IN (?) AND assigned_to = ? AND status <> ?", listIDs, userID, models.StatusDone).
			Update("assigned_to", p.ID)
		if res.Error != nil {
			return res.Error
		}
		reassigned = res.RowsAffected

		// creators and admins keep reading the board without membership
		var removed models.User
		if err := tx.Select("id", "role").First(&removed, userID).Error; err != nil {
			return err
		}
		if !policy.CanReadProject(policy.PrincipalOf(&removed), project, false) {
			revoke = append(revoke, userID)
		}

		return tx.Where("project_id = ? AND user_id = ?", projectID, userID).
			Delete(&models.ProjectMember{}).Error
	})
	if err != nil {
		return 0, storeError(err, "")
	}
	s.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"user_id":    userID,
		"reassigned": reassigned,
	}).Info("Member removed")
	s.publish(realtime.MemberRemoved, projectID, map[string]interface{}{
		"user_id":        userID,
		"reassigned_to":  p.ID,
		"tasks_affected": reassigned,
	}, revoke...)
	return reassigned, nil
}

type countRow struct {
	Bucket string
	Total  int64
}

// Stats summarises the tasks of one accessible project.
func (s *ProjectService) Stats(ctx context.Context, p policy.Principal, id uint) (*ProjectStats, error) {
	db := s.conn(ctx)
	project, err := findProject(db, id, false)
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

	stats := &ProjectStats{
		ProjectID:  id,
		ByStatus:   map[models.TaskStatus]int64{models.StatusPlanned: 0, models.StatusInProgress: 0, models.StatusDone: 0},
		ByPriority: map[models.TaskPriority]int64{models.PriorityHigh: 0, models.PriorityMedium: 0, models.PriorityLow: 0},
	}
	tasks := func() *gorm.DB {
		listIDs := db.Model(&models.List{}).Select("id").Where("project_id = ?", id)
		return db.Model(&models.Task{}).Where("list_id IN (?)", listIDs)
	}

	var rows []countRow
	if err := tasks().Select("status AS bucket, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, storeError(err, "")
	}
	for _, r := range rows {
		stats.ByStatus[models.TaskStatus(r.Bucket)] = r.Total
		stats.TotalTasks += r.Total
	}

	rows = nil
	if err := tasks().Select("priority AS bucket, COUNT(*) AS total").Group("priority").Scan(&rows).Error; err != nil {
		return nil, storeError(err, "")
	}
	for _, r := range rows {
		stats.ByPriority[models.TaskPriority(r.Bucket)] = r.Total
	}

	err = tasks().
		Where("deadline IS NOT NULL AND deadline < ? AND status <> ?", s.today(), models.StatusDone).
		Count(&stats.OverdueTasks).Error
	if err != nil {
		return nil, storeError(err, "")
	}

	if stats.TotalTasks > 0 {
		done := float64(stats.ByStatus[models.StatusDone])
		stats.CompletionPercent = float64(int(done/float64(stats.TotalTasks)*10000+0.5)) / 100
	}
	return stats, nil
}

// accessibleProjectIDs is the subquery of projects a principal can read.
func accessibleProjectIDs(db *gorm.DB, p policy.Principal) *gorm.DB {
	memberOf := db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", p.ID)
	return db.Model(&models.Project{}).Select("id").Where("created_by = ? OR id IN (?)", p.ID, memberOf)
}
