package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskflow/config"
	"taskflow/models"
	"taskflow/realtime"
)

type testServer struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })
	config.AppConfig = config.Config{
		Environment:        "test",
		JWTSecret:          "routes-test-secret-0123456789abcdef",
		JWTExpiry:          time.Hour,
		AutoStatusFromList: true,
	}
	logrus.SetLevel(logrus.WarnLevel)

	db, err := config.Open(config.Config{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	app := fiber.New()
	SetupRoutes(app, db, Options{
		Hub:              realtime.NewHub(logrus.NewEntry(logrus.New())),
		DisableRateLimit: true,
	})
	return &testServer{t: t, app: app, db: db}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, []byte) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, out
}

func (s *testServer) decode(raw []byte, out interface{}) {
	s.t.Helper()
	require.NoError(s.t, json.Unmarshal(raw, out), string(raw))
}

// account inserts a user and logs in, returning the token and the id.
func (s *testServer) account(name string, role models.Role) (string, uint) {
	s.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Secret123"), bcrypt.MinCost)
	require.NoError(s.t, err)
	user := models.User{Name: name, Email: name + "@example.com", PasswordHash: string(hash), Role: role}
	require.NoError(s.t, s.db.Create(&user).Error)

	status, raw := s.do("POST", "/api/auth/login", "", map[string]string{
		"email":    user.Email,
		"password": "Secret123",
	})
	require.Equal(s.t, fiber.StatusOK, status, string(raw))
	var resp struct {
		Token string `json:"token"`
	}
	s.decode(raw, &resp)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token, user.ID
}

type errorBody struct {
	Error   string `json:"error"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do("GET", "/api/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, raw := s.do("GET", "/api/nothing-here", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	var body errorBody
	s.decode(raw, &body)
	assert.NotEmpty(t, body.Error)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do("POST", "/api/auth/register", "", map[string]string{
		"name": "Ana", "email": "ana@example.com", "password": "Secret123", "role": "admin",
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	var reg struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	s.decode(raw, &reg)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, models.RoleUser, reg.User.Role)
	assert.NotContains(t, string(raw), "password")

	status, raw = s.do("POST", "/api/auth/register", "", map[string]string{
		"name": "Ana", "email": "ana@example.com", "password": "Secret123",
	})
	assert.Equal(t, fiber.StatusConflict, status, string(raw))

	status, raw = s.do("POST", "/api/auth/register", "", map[string]string{
		"name": "B", "email": "bad", "password": "short",
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	var verr errorBody
	s.decode(raw, &verr)
	fields := map[string]bool{}
	for _, d := range verr.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])

	status, _ = s.do("POST", "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "Wrong1234"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, raw = s.do("GET", "/api/auth/me", reg.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var me models.User
	s.decode(raw, &me)
	assert.Equal(t, reg.User.ID, me.ID)
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do("GET", "/api/projects", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do("GET", "/api/projects", "not-a-token", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestPasswordChangeRevokesTokens(t *testing.T) {
	s := newTestServer(t)
	token, id := s.account("ana", models.RoleUser)

	status, raw := s.do("PUT", fmt.Sprintf("/api/users/%d", id), token, map[string]string{
		"password":         "NewSecret1",
		"current_password": "Secret123",
	})
	require.Equal(t, fiber.StatusOK, status, string(raw))

	status, _ = s.do("GET", "/api/auth/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRoleGates(t *testing.T) {
	s := newTestServer(t)
	userToken, _ := s.account("ana", models.RoleUser)
	adminToken, adminID := s.account("root", models.RoleAdmin)

	status, _ := s.do("POST", "/api/projects", userToken, map[string]string{"name": "Nope"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do("POST", "/api/users", userToken, map[string]string{
		"name": "New", "email": "new@example.com", "password": "Secret123",
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, raw := s.do("POST", "/api/users", adminToken, map[string]string{
		"name": "New PM", "email": "pm@example.com", "password": "Secret123", "role": "project_manager",
	})
	assert.Equal(t, fiber.StatusCreated, status, string(raw))

	status, raw = s.do("DELETE", fmt.Sprintf("/api/users/%d", adminID), adminToken, nil)
	assert.Equal(t, fiber.StatusConflict, status, string(raw))
}

func TestBoardWorkflow(t *testing.T) {
	s := newTestServer(t)
	pmToken, pmID := s.account("maria", models.RoleProjectManager)
	anaToken, anaID := s.account("ana", models.RoleUser)
	eveToken, _ := s.account("eve", models.RoleUser)

	status, raw := s.do("POST", "/api/projects", pmToken, map[string]string{
		"name": "Apollo", "deadline": "2099-12-31",
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	var created struct {
		Project models.Project `json:"project"`
	}
	s.decode(raw, &created)
	projectID := created.Project.ID
	require.Len(t, created.Project.Lists, 3)
	firstList := created.Project.Lists[0].ID

	status, raw = s.do("POST", fmt.Sprintf("/api/projects/%d/members", projectID), pmToken, map[string]uint{"user_id": anaID})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	status, _ = s.do("POST", fmt.Sprintf("/api/projects/%d/members", projectID), pmToken, map[string]uint{"user_id": anaID})
	assert.Equal(t, fiber.StatusConflict, status)

	status, raw = s.do("POST", "/api/tasks", anaToken, map[string]interface{}{
		"list_id": firstList, "title": "Draft plan", "assigned_to": pmID,
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	var taskResp struct {
		Task models.Task `json:"task"`
	}
	s.decode(raw, &taskResp)
	taskID := taskResp.Task.ID
	require.NotNil(t, taskResp.Task.AssignedTo)
	assert.Equal(t, anaID, *taskResp.Task.AssignedTo)

	status, raw = s.do("POST", "/api/tasks", pmToken, map[string]interface{}{
		"list_id": firstList, "title": "After the project", "deadline": "2100-01-01",
	})
	require.Equal(t, fiber.StatusBadRequest, status, string(raw))
	var verr errorBody
	s.decode(raw, &verr)
	require.NotEmpty(t, verr.Details)
	assert.Equal(t, "deadline", verr.Details[0].Field)

	status, _ = s.do("PUT", fmt.Sprintf("/api/tasks/%d", taskID), anaToken, map[string]string{"priority": "high"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, raw = s.do("PUT", fmt.Sprintf("/api/tasks/%d", taskID), anaToken, map[string]interface{}{
		"description": "first pass", "status": "in_progress",
	})
	require.Equal(t, fiber.StatusOK, status, string(raw))

	status, raw = s.do("PUT", fmt.Sprintf("/api/tasks/%d", taskID), pmToken, map[string]string{"status": "done"})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	s.decode(raw, &taskResp)
	require.NotNil(t, taskResp.Task.CompletedAt)
	completedAt := *taskResp.Task.CompletedAt

	status, raw = s.do("PUT", fmt.Sprintf("/api/tasks/%d", taskID), pmToken, map[string]interface{}{
		"status": "planned", "description": nil,
	})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	s.decode(raw, &taskResp)
	require.NotNil(t, taskResp.Task.CompletedAt)
	assert.True(t, completedAt.Equal(*taskResp.Task.CompletedAt))
	assert.Nil(t, taskResp.Task.Description)

	status, raw = s.do("POST", "/api/comments", anaToken, map[string]interface{}{"task_id": taskID, "content": "looks good"})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	status, raw = s.do("GET", fmt.Sprintf("/api/comments/task/%d", taskID), pmToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var comments []models.Comment
	s.decode(raw, &comments)
	require.Len(t, comments, 1)
	require.NotNil(t, comments[0].Author)
	assert.Equal(t, anaID, comments[0].Author.ID)

	// outsiders see nothing and are refused direct reads
	status, raw = s.do("GET", "/api/tasks?search=draft", eveToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	var visible []models.Task
	s.decode(raw, &visible)
	assert.Empty(t, visible)

	status, raw = s.do("GET", "/api/tasks?search=draft&status=planned", anaToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	s.decode(raw, &visible)
	assert.Len(t, visible, 1)

	status, _ = s.do("GET", fmt.Sprintf("/api/tasks/%d", taskID), eveToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = s.do("GET", "/api/tasks/999999", eveToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = s.do("GET", "/api/tasks/abc", eveToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, raw = s.do("GET", fmt.Sprintf("/api/projects/%d/stats", projectID), anaToken, nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var stats struct {
		TotalTasks int64 `json:"total_tasks"`
	}
	s.decode(raw, &stats)
	assert.EqualValues(t, 1, stats.TotalTasks)

	status, raw = s.do("DELETE", fmt.Sprintf("/api/projects/%d/members", projectID), pmToken, map[string]uint{"user_id": anaID})
	require.Equal(t, fiber.StatusOK, status, string(raw))

	status, raw = s.do("DELETE", fmt.Sprintf("/api/projects/%d", projectID), pmToken, nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))

	status, _ = s.do("GET", fmt.Sprintf("/api/tasks/%d", taskID), pmToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestBoardSocketRequiresUpgradeAndAccess(t *testing.T) {
	s := newTestServer(t)
	pmToken, _ := s.account("maria", models.RoleProjectManager)

	status, raw := s.do("POST", "/api/projects", pmToken, map[string]string{"name": "Apollo"})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	var created struct {
		Project models.Project `json:"project"`
	}
	s.decode(raw, &created)

	status, _ = s.do("GET", fmt.Sprintf("/api/ws/projects/%d?token=%s", created.Project.ID, pmToken), "", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)

	status, _ = s.do("GET", fmt.Sprintf("/api/ws/projects/%d", created.Project.ID), "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}
