// Package services holds the project hierarchy rules: membership, ordering,
// cascades and authorized queries. Every operation takes the calling
// principal explicitly and returns *Error values for expected failures.
package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskflow/models"
	"taskflow/policy"
	"taskflow/realtime"
)

const dateLayout = "2006-01-02"

// Options are shared by all services
type Options struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Events realtime.Publisher

	// StatusKeywords drive the status change on list moves; nil disables it
	StatusKeywords policy.StatusKeywords

	// Now is the clock, time.Now when nil
	Now func() time.Time
}

type base struct {
	db       *gorm.DB
	logger   *logrus.Entry
	events   realtime.Publisher
	keywords policy.StatusKeywords
	now      func() time.Time
}

func newBase(opts Options, component string) base {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return base{
		db:       opts.DB,
		logger:   logger.WithField("component", component),
		events:   opts.Events,
		keywords: opts.StatusKeywords,
		now:      now,
	}
}

func (b *base) conn(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

func (b *base) publish(eventType string, projectID uint, payload interface{}, revoke ...uint) {
	if b.events == nil {
		return
	}
	b.events.Publish(realtime.Event{
		Type:      eventType,
		ProjectID: projectID,
		Payload:   payload,
		At:        b.now().UTC(),
		Revoke:    revoke,
	})
}

// today is the current date at UTC midnight.
func (b *base) today() time.Time {
	y, m, d := b.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func findProject(tx *gorm.DB, id uint, lock bool) (*models.Project, error) {
	var project models.Project
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&project, id).Error; err != nil {
		return nil, storeError(err, "project not found")
	}
	return &project, nil
}

// findList loads a list with its project.
func findList(tx *gorm.DB, id uint, lock bool) (*models.List, error) {
	var list models.List
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&list, id).Error; err != nil {
		return nil, storeError(err, "list not found")
	}
	project, err := findProject(tx, list.ProjectID, false)
	if err != nil {
		return nil, err
	}
	list.Project = project
	return &list, nil
}

// findTask loads a task with its list, project and assignee.
func findTask(tx *gorm.DB, id uint) (*models.Task, error) {
	var task models.Task
	err := tx.Preload("Assignee").Preload("List.Project").First(&task, id).Error
	if err != nil {
		return nil, storeError(err, "task not found")
	}
	if task.List == nil || task.List.Project == nil {
		return nil, Internal("task hierarchy is incomplete", nil)
	}
	return &task, nil
}

func isMember(tx *gorm.DB, projectID, userID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, storeError(err, "")
	}
	return count > 0, nil
}

// canRead resolves membership lazily; admins and creators skip the lookup.
func canRead(tx *gorm.DB, p policy.Principal, project *models.Project) (bool, error) {
	if policy.CanReadProject(p, project, false) {
		return true, nil
	}
	member, err := isMember(tx, project.ID, p.ID)
	if err != nil {
		return false, err
	}
	return policy.CanReadProject(p, project, member), nil
}

func userExists(tx *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, storeError(err, "")
	}
	return count > 0, nil
}

// nextPosition returns max(position)+1 within one parent. Callers hold a row
// lock on the parent so concurrent inserts in the same scope serialize.
func nextPosition(tx *gorm.DB, model interface{}, column string, parentID uint) (int, error) {
	var maxPos int
	err := tx.Model(model).
		Where(column+" = ?", parentID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, storeError(err, "")
	}
	return maxPos + 1, nil
}

// parseDeadline reads a YYYY-MM-DD date that must not lie in the past.
func (b *base) parseDeadline(field, value string) (*time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return nil, FieldInvalid(field, "deadline must be a date in YYYY-MM-DD format")
	}
	if t.Before(b.today()) {
		return nil, FieldInvalid(field, "deadline cannot be in the past")
	}
	return &t, nil
}

func toDate(t *time.Time) *datatypes.Date {
	if t == nil {
		return nil
	}
	d := datatypes.Date(*t)
	return &d
}

// deleteTasksWhere removes the comments of the matching tasks, then the tasks.
func deleteTasksWhere(tx *gorm.DB, query interface{}, args ...interface{}) error {
	taskIDs := tx.Model(&models.Task{}).Select("id").Where(query, args...)
	if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	return tx.Where(query, args...).Delete(&models.Task{}).Error
}

// deleteProjectTree removes a project and everything it owns, children first.
func deleteProjectTree(tx *gorm.DB, projectID uint) error {
	listIDs := tx.Model(&models.List{}).Select("id").Where("project_id = ?", projectID)
	if err := deleteTasksWhere(tx, "list_id IN (?)", listIDs); err != nil {
		return err
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&models.List{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectMember{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Project{}, projectID).Error
}

// Optional distinguishes a field left out of a partial update from one
// explicitly sent as null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns an Optional carrying v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns an Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern using '\' as escape.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
