package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/notification"
	"github.com/trezcool/elimu/core/status"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/realtime"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		SignalShutdown func()
		DisableReqLogs bool
	}

	Deps struct {
		UserSvc         user.ServiceInterface
		PasswordReset   user.PasswordResetInterface
		CourseSvc       course.ServiceInterface
		ChatSvc         chat.ServiceInterface
		NotificationSvc notification.ServiceInterface
		StatusSvc       status.ServiceInterface
		Inbox           *realtime.Inbox
	}

	Server struct {
		opts *Options
		deps *Deps
		auth *auth
		app  *echo.Echo
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(opts *Options, deps *Deps) *Server {
	s := &Server{
		opts: opts,
		deps: deps,
		auth: newAuth(opts.Conf, deps.UserSvc),
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	authed := []echo.MiddlewareFunc{s.auth.middleware(), userMiddleware(s.deps.UserSvc)}

	registerUserAPI(v1, authed, s.deps.UserSvc, s.deps.PasswordReset, s.auth, s.opts.Validate)
	registerCourseAPI(v1, authed, s.deps.CourseSvc, s.deps.UserSvc, s.opts.Validate)
	registerChatAPI(v1, authed, s.deps.ChatSvc, s.deps.UserSvc, s.deps.Inbox, s.auth, conf.FrontendBaseURL)
	registerNotificationAPI(v1, authed, s.deps.NotificationSvc)
	registerStatusAPI(v1, authed, s.deps.StatusSvc, s.opts.Validate)
}

// Start serves until Stop is called; it then returns http.ErrServerClosed.
func (s *Server) Start() error {
	conf := s.opts.Conf
	return s.app.StartServer(&http.Server{
		Addr:         conf.Server.Address,
		ReadTimeout:  conf.Server.ReadTimeout,
		WriteTimeout: conf.Server.WriteTimeout,
	})
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Elimu API!")
}
