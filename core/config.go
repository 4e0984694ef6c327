package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvDev  = "DEV"
	EnvTest = "TEST"
	EnvQA   = "QA"
	EnvProd = "PROD"

	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite3"

	BrokerMemory = "memory"
	BrokerRedis  = "redis"

	defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"
)

type (
	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address

		PasswordResetTimeoutDelta time.Duration

		Server        ServerConfig
		Database      DatabaseConfig
		Realtime      RealtimeConfig
		Notifications NotificationsConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite3 only
	}

	RealtimeConfig struct {
		PingInterval   time.Duration
		PongWait       time.Duration
		WriteWait      time.Duration
		SendBuffer     int
		MaxMessageSize int64
		SendRate       float64 // inbound "send" frames per second, per connection
		SendBurst      int
		Broker         string
		RedisAddr      string
		RedisPassword  string
		RedisDB        int
		RedisChannel   string
	}

	NotificationsConfig struct {
		BatchSize     int
		ListLimit     int
		EmailTeachers bool
	}
)

// Address returns the host:port of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig loads the configuration: defaults < config/.env.<env> < ELIMU_* environment variables.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = EnvDev
	}
	if env == EnvTest {
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	if root, err := FindRoot(); err == nil {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				panic(errors.Wrapf(err, "loading %s", dotEnvPath))
			}
		}
	}

	v.SetEnvPrefix("elimu")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTls"),
			Path:          v.GetString("database.path"),
		},
		Realtime: RealtimeConfig{
			PingInterval:   v.GetDuration("realtime.pingInterval"),
			PongWait:       v.GetDuration("realtime.pongWait"),
			WriteWait:      v.GetDuration("realtime.writeWait"),
			SendBuffer:     v.GetInt("realtime.sendBuffer"),
			MaxMessageSize: v.GetInt64("realtime.maxMessageSize"),
			SendRate:       v.GetFloat64("realtime.sendRate"),
			SendBurst:      v.GetInt("realtime.sendBurst"),
			Broker:         v.GetString("realtime.broker"),
			RedisAddr:      v.GetString("realtime.redisAddr"),
			RedisPassword:  v.GetString("realtime.redisPassword"),
			RedisDB:        v.GetInt("realtime.redisDb"),
			RedisChannel:   v.GetString("realtime.redisChannel"),
		},
		Notifications: NotificationsConfig{
			BatchSize:     v.GetInt("notifications.batchSize"),
			ListLimit:     v.GetInt("notifications.listLimit"),
			EmailTeachers: v.GetBool("notifications.emailTeachers"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Elimu")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.shutdownTimeout", 20*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", EnginePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "elimu")
	v.SetDefault("database.user", "elimu")
	v.SetDefault("database.password", "elimu")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTls", true)
	v.SetDefault("database.path", "elimu.db")

	v.SetDefault("realtime.pingInterval", 30*time.Second)
	v.SetDefault("realtime.pongWait", 60*time.Second)
	v.SetDefault("realtime.writeWait", 10*time.Second)
	v.SetDefault("realtime.sendBuffer", 100)
	v.SetDefault("realtime.maxMessageSize", int64(16*1024))
	v.SetDefault("realtime.sendRate", 10.0)
	v.SetDefault("realtime.sendBurst", 20)
	v.SetDefault("realtime.broker", BrokerMemory)
	v.SetDefault("realtime.redisAddr", "localhost:6379")
	v.SetDefault("realtime.redisPassword", "")
	v.SetDefault("realtime.redisDb", 0)
	v.SetDefault("realtime.redisChannel", "elimu:inbox")

	v.SetDefault("notifications.batchSize", 500)
	v.SetDefault("notifications.listLimit", 50)
	v.SetDefault("notifications.emailTeachers", false)
}

// Validate reports the first impossible setting.
func (c *Config) Validate() error {
	switch {
	case c.AppName == "":
		return errors.New("app name cannot be empty")
	case c.SecretKey == "":
		return errors.New("secret key cannot be empty")
	case c.SecretKey == defaultSecretKey && !(c.Env == EnvDev || c.Env == EnvTest):
		return fmt.Errorf("the default secret key cannot be used in %s", c.Env)
	case c.PasswordResetTimeoutDelta <= 0:
		return errors.New("password reset timeout must be positive")
	case c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0:
		return errors.New("server timeouts must be positive")
	case c.Server.JWTExpirationDelta <= 0 || c.Server.JWTRefreshExpirationDelta <= 0:
		return errors.New("JWT deltas must be positive")
	case c.Database.Engine != EnginePostgres && c.Database.Engine != EngineSQLite:
		return fmt.Errorf("unsupported database engine %q", c.Database.Engine)
	case c.Database.Engine == EngineSQLite && c.Database.Path == "":
		return errors.New("sqlite3 database path cannot be empty")
	case c.Realtime.PingInterval <= 0 || c.Realtime.PongWait <= 0 || c.Realtime.WriteWait <= 0:
		return errors.New("realtime timeouts must be positive")
	case c.Realtime.PingInterval >= c.Realtime.PongWait:
		return errors.New("realtime ping interval must be shorter than the pong wait")
	case c.Realtime.SendBuffer <= 0 || c.Realtime.MaxMessageSize <= 0:
		return errors.New("realtime buffers must be positive")
	case c.Realtime.SendRate <= 0 || c.Realtime.SendBurst <= 0:
		return errors.New("realtime send rate and burst must be positive")
	case c.Realtime.Broker != BrokerMemory && c.Realtime.Broker != BrokerRedis:
		return fmt.Errorf("unsupported realtime broker %q", c.Realtime.Broker)
	case c.Realtime.Broker == BrokerRedis && (c.Realtime.RedisAddr == "" || c.Realtime.RedisChannel == ""):
		return errors.New("redis broker requires an address and a channel")
	case c.Notifications.BatchSize <= 0 || c.Notifications.ListLimit <= 0:
		return errors.New("notification batch size and list limit must be positive")
	}
	return nil
}
