package services

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/models"
	"taskflow/realtime"
	"taskflow/utils"
)

func TestCreateListAppends(t *testing.T) {
	f := newFixture(t)
	m := f.user(t, "maria", models.RoleProjectManager)
	project := f.project(t, m, nil)

	list, err := f.lists.Create(f.ctx, m, NewList{ProjectID: project.ID, Name: "Blocked"})
	require.NoError(t, err)
	assert.Equal(t, 4, list.Position)

	lists, err := f.lists.ByProject(f.ctx, m, project.ID)
	require.NoError(t, err)
	require.Len(t, lists, 4)
	for i, l := range lists {
		assert.Equal(t, i+1, l.Position)
	}
	assert.Equal(t, "Blocked", lists[3].Name)
	assert.Contains(t, f.events.types(), realtime.ListCreated)
}

func TestListPermissions(t *testing.T) {
	f := newFixture(t)
	m := f.user(t, "maria", models.RoleProjectManager)
	otherManager := f.user(t, "marko", models.RoleProjectManager)
	member := f.user(t, "ana", models.RoleUser)
	admin := f.user(t, "root", models.RoleAdmin)
	outsider := f.user(t, "eve", models.RoleUser)
	project := f.project(t, m, nil)
	_, err := f.projects.AddMember(f.ctx, m, project.ID, member.ID)
	require.NoError(t, err)

	_, err = f.lists.Create(f.ctx, member, NewList{ProjectID: project.ID, Name: "Mine"})
	requireKind(t, err, KindForbidden)
	_, err = f.lists.Create(f.ctx, otherManager, NewList{ProjectID: project.ID, Name: "Mine"})
	requireKind(t, err, KindForbidden)
	_, err = f.lists.Create(f.ctx, admin, NewList{ProjectID: project.ID, Name: "Admin's"})
	require.NoError(t, err)

	_, err = f.lists.Create(f.ctx, m, NewList{ProjectID: 9999, Name: "Nowhere"})
	requireKind(t, err, KindNotFound)

	// members can read the board
	_, err = f.lists.ByProject(f.ctx, member, project.ID)
	require.NoError(t, err)
	_, err = f.lists.ByProject(f.ctx, outsider, project.ID)
	requireKind(t, err, KindForbidden)
	_, err = f.lists.ByProject(f.ctx, outsider, 9999)
	requireKind(t, err, KindNotFound)
}

func TestListPositionConflict(t *testing.T) {
	f := newFixture(t)
	m := f.user(t, "maria", models.RoleProjectManager)
	project := f.project(t, m, nil)

	// two creators that both computed max+1 collide on the unique index
	_, err := f.lists.Create(f.ctx, m, NewList{ProjectID: project.ID, Name: "Late writer", Position: utils.Pointer(3)})
	requireKind(t, err, KindConflict)

	_, err = f.lists.Update(f.ctx, m, project.Lists[0].ID, ListUpdate{Position: utils.Pointer(2)})
	requireKind(t, err, KindConflict)

	moved, err := f.lists.Update(f.ctx, m, project.Lists[0].ID, ListUpdate{Position: utils.Pointer(10), Name: utils.Pointer("Backlog")})
	require.NoError(t, err)
	assert.Equal(t, 10, moved.Position)
	assert.Equal(t, "Backlog", moved.Name)

	_, err = f.lists.Update(f.ctx, m, project.Lists[1].ID, ListUpdate{Position: utils.Pointer(0)})
	requireKind(t, err, KindValidation)
}

func TestDeleteListCascades(t *testing.T) {
	f := newFixture(t)
	m := f.user(t, "maria", models.RoleProjectManager)
	project := f.project(t, m, nil)
	target := project.Lists[0]
	keep := project.Lists[1]

	gone, err := f.tasks.Create(f.ctx, m, NewTask{ListID: target.ID, Title: "Gone"})
	require.NoError(t, err)
	_, err = f.comments.Create(f.ctx, m, gone.ID, "bye")
	require.NoError(t, err)
	kept, err := f.tasks.Create(f.ctx, m, NewTask{ListID: keep.ID, Title: "Kept"})
	require.NoError(t, err)

	require.NoError(t, f.lists.Delete(f.ctx, m, target.ID))

	assert.EqualValues(t, 0, count(t, f.db, &models.List{}, "id = ?", target.ID))
	assert.EqualValues(t, 0, count(t, f.db, &models.Task{}, "id = ?", gone.ID))
	assert.EqualValues(t, 0, count(t, f.db, &models.Comment{}, "task_id = ?", gone.ID))
	assert.EqualValues(t, 1, count(t, f.db, &models.Task{}, "id = ?", kept.ID))

	requireKind(t, f.lists.Delete(f.ctx, m, target.ID), KindNotFound)
}

func TestConcurrentListCreationGetsDistinctPositions(t *testing.T) {
	f := newFixture(t)
	singleWriter(t, f.db)
	m := f.user(t, "maria", models.RoleProjectManager)
	project := f.project(t, m, nil)

	const n = 8
	errs := concurrently(n, func(i int) error {
		_, err := f.lists.Create(f.ctx, m, NewList{ProjectID: project.ID, Name: fmt.Sprintf("Stage %d", i)})
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	var positions []int
	require.NoError(t, f.db.Model(&models.List{}).Where("project_id = ?", project.ID).
		Pluck("position", &positions).Error)
	sort.Ints(positions)
	require.Len(t, positions, n+3)
	for i, pos := range positions {
		assert.Equal(t, i+1, pos)
	}
}
