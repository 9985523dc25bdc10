package services

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/models"
	"taskflow/realtime"
	"taskflow/utils"
)

func TestCreateProjectSeedsListsAndMembership(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)

	project := f.project(t, manager, utils.Pointer("2099-12-31"))

	var lists []models.List
	require.NoError(t, f.db.Where("project_id = ?", project.ID).Order("position").Find(&lists).Error)
	require.Len(t, lists, 3)
	for i, list := range lists {
		assert.Equal(t, i+1, list.Position)
		assert.Equal(t, models.DefaultListNames[i], list.Name)
	}
	assert.EqualValues(t, 1, count(t, f.db, &models.ProjectMember{}, "project_id = ? AND user_id = ?", project.ID, manager.ID))
	assert.Equal(t, models.ProjectActive, project.Status)
	assert.Equal(t, "2099-12-31", project.DeadlineTime().Format(dateLayout))
}

func TestCreateProjectRules(t *testing.T) {
	f := newFixture(t)
	plain := f.user(t, "ivan", models.RoleUser)
	manager := f.user(t, "maria", models.RoleProjectManager)

	_, err := f.projects.Create(f.ctx, plain, NewProject{Name: "Nope"})
	requireKind(t, err, KindForbidden)

	_, err = f.projects.Create(f.ctx, manager, NewProject{Name: "Late", Deadline: utils.Pointer("2020-01-01")})
	requireKind(t, err, KindValidation)

	_, err = f.projects.Create(f.ctx, manager, NewProject{Name: "Bad", Deadline: utils.Pointer("31.12.2099")})
	requireKind(t, err, KindValidation)

	assert.EqualValues(t, 0, count(t, f.db, &models.Project{}, "1 = 1"))
}

func TestListProjectsVisibility(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "root", models.RoleAdmin)
	m1 := f.user(t, "maria", models.RoleProjectManager)
	m2 := f.user(t, "marko", models.RoleProjectManager)
	member := f.user(t, "ana", models.RoleUser)

	p1 := f.project(t, m1, nil)
	f.project(t, m2, nil)
	_, err := f.projects.AddMember(f.ctx, m1, p1.ID, member.ID)
	require.NoError(t, err)

	all, err := f.projects.List(f.ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.projects.List(f.ctx, m1)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, p1.ID, own[0].ID)

	joined, err := f.projects.List(f.ctx, member)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, p1.ID, joined[0].ID)
}

func TestGetProjectExpandsAndChecksAccess(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)
	outsider := f.user(t, "eve", models.RoleUser)
	project := f.project(t, manager, nil)

	got, err := f.projects.Get(f.ctx, manager, project.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Creator)
	assert.Equal(t, manager.ID, got.Creator.ID)
	require.Len(t, got.Members, 1)
	assert.Equal(t, manager.ID, got.Members[0].ID)
	require.Len(t, got.Lists, 3)
	assert.Equal(t, "Planned", got.Lists[0].Name)

	_, err = f.projects.Get(f.ctx, outsider, project.ID)
	requireKind(t, err, KindForbidden)

	// existence is reported before access
	_, err = f.projects.Get(f.ctx, outsider, 9999)
	requireKind(t, err, KindNotFound)
}

func TestUpdateProject(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "maria", models.RoleProjectManager)
	other := f.user(t, "marko", models.RoleProjectManager)
	project := f.project(t, owner, utils.Pointer("2099-12-31"))

	archived := models.ProjectArchived
	updated, err := f.projects.Update(f.ctx, owner, project.ID, ProjectUpdate{
		Name:     utils.Pointer("Apollo 2"),
		Deadline: Null[string](),
		Status:   &archived,
	})
	require.NoError(t, err)
	assert.Equal(t, "Apollo 2", updated.Name)
	assert.Nil(t, updated.Deadline)
	assert.Equal(t, models.ProjectArchived, updated.Status)

	_, err = f.projects.Update(f.ctx, other, project.ID, ProjectUpdate{Name: utils.Pointer("Hijack")})
	requireKind(t, err, KindForbidden)

	assert.Contains(t, f.events.types(), realtime.ProjectUpdated)
}

func TestDeleteProjectCascades(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)
	member := f.user(t, "ana", models.RoleUser)
	project := f.project(t, manager, nil)
	_, err := f.projects.AddMember(f.ctx, manager, project.ID, member.ID)
	require.NoError(t, err)

	listID := project.Lists[0].ID
	task, err := f.tasks.Create(f.ctx, member, NewTask{ListID: listID, Title: "Write docs"})
	require.NoError(t, err)
	_, err = f.comments.Create(f.ctx, member, task.ID, "on it")
	require.NoError(t, err)

	err = f.projects.Delete(f.ctx, member, project.ID)
	requireKind(t, err, KindForbidden)

	require.NoError(t, f.projects.Delete(f.ctx, manager, project.ID))

	assert.EqualValues(t, 0, count(t, f.db, &models.Project{}, "id = ?", project.ID))
	assert.EqualValues(t, 0, count(t, f.db, &models.List{}, "project_id = ?", project.ID))
	assert.EqualValues(t, 0, count(t, f.db, &models.Task{}, "list_id = ?", listID))
	assert.EqualValues(t, 0, count(t, f.db, &models.Comment{}, "task_id = ?", task.ID))
	assert.EqualValues(t, 0, count(t, f.db, &models.ProjectMember{}, "project_id = ?", project.ID))
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)
	member := f.user(t, "ana", models.RoleUser)
	project := f.project(t, manager, nil)

	added, err := f.projects.AddMember(f.ctx, manager, project.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, added.UserID)
	require.NotNil(t, added.User)
	assert.Equal(t, "ana", added.User.Name)

	_, err = f.projects.AddMember(f.ctx, manager, project.ID, member.ID)
	requireKind(t, err, KindConflict)

	_, err = f.projects.AddMember(f.ctx, manager, project.ID, 9999)
	requireKind(t, err, KindNotFound)

	// membership alone does not allow managing members
	third := f.user(t, "petar", models.RoleUser)
	_, err = f.projects.AddMember(f.ctx, member, project.ID, third.ID)
	requireKind(t, err, KindForbidden)
}

func TestRemoveMemberReassignsOpenTasks(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)
	member := f.user(t, "ana", models.RoleUser)
	project := f.project(t, manager, utils.Pointer("2099-12-31"))
	_, err := f.projects.AddMember(f.ctx, manager, project.ID, member.ID)
	require.NoError(t, err)

	listID := project.Lists[0].ID
	open, err := f.tasks.Create(f.ctx, member, NewTask{ListID: listID, Title: "In flight"})
	require.NoError(t, err)
	_, err = f.tasks.Update(f.ctx, member, open.ID, TaskUpdate{Status: statusPtr(models.StatusInProgress)})
	require.NoError(t, err)

	finished, err := f.tasks.Create(f.ctx, member, NewTask{ListID: listID, Title: "Finished"})
	require.NoError(t, err)
	_, err = f.tasks.Update(f.ctx, member, finished.ID, TaskUpdate{Status: statusPtr(models.StatusDone)})
	require.NoError(t, err)

	reassigned, err := f.projects.RemoveMember(f.ctx, manager, project.ID, member.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reassigned)

	var got models.Task
	require.NoError(t, f.db.First(&got, open.ID).Error)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, manager.ID, *got.AssignedTo)

	var done models.Task
	require.NoError(t, f.db.First(&done, finished.ID).Error)
	require.NotNil(t, done.AssignedTo)
	assert.Equal(t, member.ID, *done.AssignedTo)

	assert.EqualValues(t, 0, count(t, f.db, &models.ProjectMember{}, "project_id = ? AND user_id = ?", project.ID, member.ID))

	_, err = f.projects.RemoveMember(f.ctx, manager, project.ID, member.ID)
	requireKind(t, err, KindNotFound)
}

func TestRemoveMemberClosesBoardSubscription(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)
	member := f.user(t, "ana", models.RoleUser)
	admin := f.user(t, "root", models.RoleAdmin)
	project := f.project(t, manager, nil)
	for _, u := range []uint{member.ID, admin.ID} {
		_, err := f.projects.AddMember(f.ctx, manager, project.ID, u)
		require.NoError(t, err)
	}

	hub := realtime.NewHub(logrus.NewEntry(logrus.New()))
	projects := NewProjectService(Options{DB: f.db, Events: hub, Now: func() time.Time { return testNow }})

	_, memberEvents := hub.Subscribe(project.ID, member.ID)
	_, adminEvents := hub.Subscribe(project.ID, admin.ID)
	_, managerEvents := hub.Subscribe(project.ID, manager.ID)

	_, err := projects.RemoveMember(f.ctx, manager, project.ID, member.ID)
	require.NoError(t, err)
	ev, open := <-memberEvents
	require.True(t, open)
	assert.Equal(t, realtime.MemberRemoved, ev.Type)
	_, open = <-memberEvents
	assert.False(t, open, "removed member must stop receiving board events")

	// admins read every project, so losing membership keeps the stream
	_, err = projects.RemoveMember(f.ctx, manager, project.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Subscribers(project.ID))

	require.NoError(t, projects.Delete(f.ctx, manager, project.ID))
	for _, ch := range []<-chan realtime.Event{adminEvents, managerEvents} {
		for range ch {
		}
	}
	assert.Equal(t, 0, hub.Subscribers(project.ID))
}

func TestProjectStats(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "maria", models.RoleProjectManager)
	outsider := f.user(t, "eve", models.RoleUser)
	project := f.project(t, manager, nil)
	listID := project.Lists[0].ID

	for _, in := range []NewTask{
		{ListID: listID, Title: "One", Priority: models.PriorityHigh},
		{ListID: listID, Title: "Two", Priority: models.PriorityLow},
		{ListID: listID, Title: "Three"},
		{ListID: listID, Title: "Four", Deadline: utils.Pointer("2030-01-20")},
	} {
		_, err := f.tasks.Create(f.ctx, manager, in)
		require.NoError(t, err)
	}

	var first models.Task
	require.NoError(t, f.db.Where("title = ?", "One").First(&first).Error)
	_, err := f.tasks.Update(f.ctx, manager, first.ID, TaskUpdate{Status: statusPtr(models.StatusDone)})
	require.NoError(t, err)

	// a deadline that has since passed
	require.NoError(t, f.db.Model(&models.Task{}).Where("title = ?", "Two").
		Update("deadline", toDate(timePtr(testNow.AddDate(0, 0, -3)))).Error)

	stats, err := f.projects.Stats(f.ctx, manager, project.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.TotalTasks)
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusDone])
	assert.EqualValues(t, 3, stats.ByStatus[models.StatusPlanned])
	assert.EqualValues(t, 0, stats.ByStatus[models.StatusInProgress])
	assert.EqualValues(t, 1, stats.ByPriority[models.PriorityHigh])
	assert.EqualValues(t, 2, stats.ByPriority[models.PriorityMedium])
	assert.EqualValues(t, 1, stats.OverdueTasks)
	assert.Equal(t, 25.0, stats.CompletionPercent)

	_, err = f.projects.Stats(f.ctx, outsider, project.ID)
	requireKind(t, err, KindForbidden)
}
