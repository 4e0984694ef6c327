package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/notification"
	"github.com/trezcool/elimu/core/status"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/realtime"
	emailsvc "github.com/trezcool/elimu/services/email"
	logsvc "github.com/trezcool/elimu/services/logger"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
	testutil "github.com/trezcool/elimu/tests"
)

const testPwd = "Kx9#mQ2$vLp7"

type testApp struct {
	*Server
	mailSvc   *emailsvc.ConsoleService
	usrRepo   user.Repository
	courseSvc *course.Service
	registry  *realtime.Registry
}

func testConfig() *core.Config {
	return &core.Config{
		Env:             core.EnvTest,
		TestMode:        true,
		AppName:         "Elimu",
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://localhost:3000",

		PasswordResetTimeoutDelta: time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func setup(t *testing.T) *testApp {
	conf := testConfig()
	logger := logsvc.NewRollbarLogger(zap.NewNop().Sugar(), conf)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	// set up services
	usrSvc := user.NewService(usrRepo)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	chatSvc := chat.NewService(inmemdb.NewChatRepository(db), usrSvc)
	courseSvc := course.NewService(inmemdb.NewCourseRepository(db), nil)
	courseSvc.SetNotifier(notification.NewDispatcher(
		notifRepo, courseSvc, usrSvc, mailSvc, logger,
		notification.DispatcherOptions{},
	))

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	registry := realtime.NewRegistry()
	inbox := realtime.NewInbox(chatSvc, registry, nil, validate, logger, realtime.InboxOptions{
		ConnOptions: realtime.ConnOptions{
			WriteWait:      time.Second,
			PingInterval:   time.Minute,
			PongWait:       2 * time.Minute,
			MaxMessageSize: 4096,
			SendBuffer:     16,
		},
		SendRate:  100,
		SendBurst: 100,
	})

	// set up server
	server := NewServer(
		&Options{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
		&Deps{
			UserSvc:         usrSvc,
			PasswordReset:   user.NewPasswordReset(usrSvc, mailSvc, conf),
			CourseSvc:       courseSvc,
			ChatSvc:         chatSvc,
			NotificationSvc: notification.NewService(notifRepo, 0),
			StatusSvc:       status.NewService(inmemdb.NewStatusRepository(db), 0),
			Inbox:           inbox,
		},
	)
	t.Cleanup(inbox.Shutdown)

	return &testApp{Server: server, mailSvc: mailSvc, usrRepo: usrRepo, courseSvc: courseSvc, registry: registry}
}

func (app *testApp) createUser(t *testing.T, uname, role string, isActive ...bool) user.User {
	active := true
	if len(isActive) > 0 {
		active = isActive[0]
	}
	return testutil.CreateUser(t, app.usrRepo, "", uname, uname+"@test.cd", testPwd, role, active)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := app.auth.generateToken(app.auth.userClaims(usr))
	require.NoError(t, err)
	return token
}

// do serves a request and returns the recorded response.
func (app *testApp) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

var itoa = strconv.Itoa

type httpErr struct {
	Error string `json:"error"`
}

func Test_home(t *testing.T) {
	app := setup(t)

	rec := app.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Elimu API!", rec.Body.String())
}

func Test_authMiddleware(t *testing.T) {
	app := setup(t)
	inactive := app.createUser(t, "ghost", user.RoleStudent, false)
	gone := user.User{ID: 999, Username: "gone"}

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "no token", wantCode: http.StatusUnauthorized},
		{name: "garbage token", token: "lol", wantCode: http.StatusUnauthorized},
		{name: "deactivated user", token: app.token(t, inactive), wantCode: http.StatusForbidden},
		{name: "unknown user", token: app.token(t, gone), wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, "/v1/users/me", tt.token, nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}
