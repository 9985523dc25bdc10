package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/utils"
)

const dateLayout = "2006-01-02"

// DeadlineWorker e-mails assignees about open tasks whose deadline is near.
// Each task is reminded once; a failed send is retried on the next tick.
type DeadlineWorker struct {
	DB          *gorm.DB
	Mailer      utils.Mailer
	Logger      *logrus.Entry
	Interval    time.Duration
	Window      time.Duration
	FrontendURL string

	// Now is the clock, time.Now when nil
	Now func() time.Time
}

func NewDeadlineWorker(db *gorm.DB, mailer utils.Mailer, logger *logrus.Entry, interval, window time.Duration) *DeadlineWorker {
	return &DeadlineWorker{
		DB:       db,
		Mailer:   mailer,
		Logger:   logger.WithField("component", "deadline_worker"),
		Interval: interval,
		Window:   window,
	}
}

func (dw *DeadlineWorker) now() time.Time {
	if dw.Now != nil {
		return dw.Now()
	}
	return time.Now()
}

// Start runs until ctx is cancelled.
func (dw *DeadlineWorker) Start(ctx context.Context) {
	dw.Logger.WithFields(logrus.Fields{
		"interval": dw.Interval.String(),
		"window":   dw.Window.String(),
	}).Info("Deadline worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	dw.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			dw.Logger.Info("Deadline worker shutting down...")
			return
		case <-ticker.C:
			dw.tick(ctx)
		}
	}
}

func (dw *DeadlineWorker) tick(ctx context.Context) {
	sent, err := dw.ProcessDue(ctx)
	if err != nil {
		utils.LogError("deadline_reminders", err, nil)
		return
	}
	if sent > 0 {
		dw.Logger.WithField("sent", sent).Info("Deadline reminders sent")
	}
}

// dueTasks returns open, assigned tasks due between today and the end of the
// window that have not been reminded yet.
func (dw *DeadlineWorker) dueTasks(ctx context.Context) ([]models.Task, error) {
	y, m, d := dw.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	until := today.Add(dw.Window)

	var tasks []models.Task
	err := dw.DB.WithContext(ctx).
		Preload("Assignee").
		Preload("List.Project").
		Where("status <> ?", models.StatusDone).
		Where("assigned_to IS NOT NULL").
		Where("reminder_sent_at IS NULL").
		Where("deadline IS NOT NULL AND deadline >= ? AND deadline <= ?", today, until).
		Order("deadline ASC, id ASC").
		Find(&tasks).Error
	return tasks, err
}

// ProcessDue sends every pending reminder and reports how many went out.
func (dw *DeadlineWorker) ProcessDue(ctx context.Context) (int, error) {
	tasks, err := dw.dueTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load due tasks: %w", err)
	}

	sent := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := dw.remind(ctx, task); err != nil {
			dw.Logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to send deadline reminder")
			continue
		}
		sent++
	}
	return sent, nil
}

func (dw *DeadlineWorker) remind(ctx context.Context, task models.Task) error {
	if task.Assignee == nil {
		return fmt.Errorf("task %d has no loaded assignee", task.ID)
	}

	reminder := utils.DeadlineReminder{
		Name:      task.Assignee.Name,
		TaskTitle: task.Title,
		Deadline:  task.DeadlineTime().Format(dateLayout),
		Priority:  string(task.Priority),
	}
	if task.List != nil && task.List.Project != nil {
		reminder.ProjectName = task.List.Project.Name
		if dw.FrontendURL != "" {
			reminder.Link = fmt.Sprintf("%s/projects/%d", dw.FrontendURL, task.List.Project.ID)
		}
	}

	subject, body, err := utils.RenderDeadlineReminder(reminder)
	if err != nil {
		return err
	}
	if err := dw.Mailer.Send(ctx, task.Assignee.Email, subject, body); err != nil {
		return err
	}

	return dw.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", task.ID).
		Update("reminder_sent_at", dw.now().UTC()).Error
}
