package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/elimu/apps/api/echo"
	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/notification"
	"github.com/trezcool/elimu/core/status"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/realtime"
	emailsvc "github.com/trezcool/elimu/services/email"
	logsvc "github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/storage/database"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	if err := conf.Validate(); err != nil {
		return err
	}

	// set up loggers
	std, err := logsvc.NewStdLogger(conf)
	if err != nil {
		return err
	}
	defer func() { _ = std.Sync() }()
	logger := logsvc.NewRollbarLogger(std.Named("api"), conf)
	dbLogger := logsvc.NewRollbarLogger(std.Named("db"), conf)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			dbLogger.Error("failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	chatSvc := chat.NewService(sqlxrepos.NewChatRepository(db), usrSvc)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), conf.Notifications.ListLimit)
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db), nil)
	statusSvc := status.NewService(sqlxrepos.NewStatusRepository(db), 0)
	courseSvc.SetNotifier(notification.NewDispatcher(
		sqlxrepos.NewNotificationRepository(db),
		courseSvc,
		usrSvc,
		mailSvc,
		logger,
		notification.DispatcherOptions{
			BatchSize:       conf.Notifications.BatchSize,
			EmailTeachers:   conf.Notifications.EmailTeachers,
			FrontendBaseURL: conf.FrontendBaseURL,
		},
	))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up the realtime layer
	registry := realtime.NewRegistry()
	var publisher realtime.Publisher = registry

	brokerCtx, stopBroker := context.WithCancel(context.Background())
	defer stopBroker()
	if conf.Realtime.Broker == core.BrokerRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Realtime.RedisAddr,
			Password: conf.Realtime.RedisPassword,
			DB:       conf.Realtime.RedisDB,
		})
		defer func() { _ = client.Close() }()

		broker := realtime.NewRedisBroker(client, conf.Realtime.RedisChannel, registry, logger)
		if err := broker.Subscribe(brokerCtx); err != nil {
			return errors.Wrap(err, "starting redis broker")
		}
		publisher = broker
		go func() {
			if err := broker.Run(brokerCtx); err != nil {
				logger.Error("redis broker stopped", err)
			}
		}()
	}

	inbox := realtime.NewInbox(chatSvc, registry, publisher, validate, logger, realtime.InboxOptions{
		ConnOptions: realtime.ConnOptions{
			WriteWait:      conf.Realtime.WriteWait,
			PingInterval:   conf.Realtime.PingInterval,
			PongWait:       conf.Realtime.PongWait,
			MaxMessageSize: conf.Realtime.MaxMessageSize,
			SendBuffer:     conf.Realtime.SendBuffer,
		},
		SendRate:  conf.Realtime.SendRate,
		SendBurst: conf.Realtime.SendBurst,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("inbox", expvar.Func(func() interface{} { return inbox.Stats() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(
		&echoapi.Options{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			SignalShutdown: func() {
				select {
				case shutdown <- syscall.SIGTERM:
				default: // already shutting down
				}
			},
		},
		&echoapi.Deps{
			UserSvc:         usrSvc,
			PasswordReset:   user.NewPasswordReset(usrSvc, mailSvc, conf),
			CourseSvc:       courseSvc,
			ChatSvc:         chatSvc,
			NotificationSvc: notifSvc,
			StatusSvc:       statusSvc,
			Inbox:           inbox,
		},
	)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// live sockets are hijacked: the http server does not track them
		inbox.Shutdown()
		stopBroker()

		// asking listener to shutdown and shed load
		if err := server.Stop(ctx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
	}
	return nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(db); err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
