package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskflow/config"
	"taskflow/models"
	"taskflow/policy"
	"taskflow/realtime"
)

var testNow = time.Date(2030, time.January, 15, 10, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recordingPublisher) Publish(ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	ctx      context.Context
	events   *recordingPublisher
	users    *UserService
	projects *ProjectService
	lists    *ListService
	tasks    *TaskService
	comments *CommentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := config.Open(config.Config{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "taskflow.db"),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	events := &recordingPublisher{}
	opts := Options{
		DB:             db,
		Logger:         logrus.NewEntry(logger),
		Events:         events,
		StatusKeywords: policy.DefaultStatusKeywords,
		Now:            func() time.Time { return testNow },
	}
	return &fixture{
		db:       db,
		ctx:      context.Background(),
		events:   events,
		users:    NewUserService(opts),
		projects: NewProjectService(opts),
		lists:    NewListService(opts),
		tasks:    NewTaskService(opts),
		comments: NewCommentService(opts),
	}
}

// user inserts an account directly, bypassing the service rules.
func (f *fixture) user(t *testing.T, name string, role models.Role) policy.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
	}
	require.NoError(t, f.db.Create(&u).Error)
	return policy.PrincipalOf(&u)
}

func (f *fixture) project(t *testing.T, owner policy.Principal, deadline *string) *models.Project {
	t.Helper()
	p, err := f.projects.Create(f.ctx, owner, NewProject{Name: "Apollo", Deadline: deadline})
	require.NoError(t, err)
	return p
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), err.Error())
}

func count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func statusPtr(s models.TaskStatus) *models.TaskStatus { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// singleWriter limits the sqlite pool to one connection so concurrent
// transactions queue instead of failing with SQLITE_BUSY. Postgres relies on
// the parent row lock for the same ordering.
func singleWriter(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
}

// concurrently runs fn n times in parallel and returns the errors in call order.
func concurrently(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}
