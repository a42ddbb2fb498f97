package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Addr            string
		DebugAddr       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// AttendanceConfig holds the check-in business policy. Slot bases and
	// cutoffs are minutes of day; the defaults preserve the original policy
	// (08:00/08:20 and 14:00/14:20, boundary minute counts as on time).
	// The bases are the scheduled slot starts, informational only:
	// classification compares against the cutoffs, and early scans register
	// as present.
	AttendanceConfig struct {
		FirstSlotBase      int
		FirstSlotCutoff    int
		SecondSlotBase     int
		SecondSlotCutoff   int
		TermDays           int
		LockTimeout        time.Duration
		RecentScanWindow   time.Duration
		HealthErrorRateMax float64
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		DefaultFromEmail mail.Address
		AlertEmails      []mail.Address
		SendgridAPIKey   string
		RollbarToken     string

		Server     ServerConfig
		Database   DatabaseConfig
		Attendance AttendanceConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and ENV-prefixed environment variables.
func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Mahudhurio")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("alertEmails", "")

	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddr", ":8000")
	conf.SetDefault("serverDebugAddr", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)

	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseName", "mahudhurio")
	conf.SetDefault("databaseHost", "localhost")
	conf.SetDefault("databasePort", "5432")
	conf.SetDefault("databaseUser", "mahudhurio")
	conf.SetDefault("databasePassword", "")
	conf.SetDefault("databaseAdminUser", "")
	conf.SetDefault("databaseAdminPassword", "")
	conf.SetDefault("databaseDisableTLS", true)

	conf.SetDefault("firstSlotBase", 480)    // 08:00
	conf.SetDefault("firstSlotCutoff", 500)  // 08:20
	conf.SetDefault("secondSlotBase", 840)   // 14:00
	conf.SetDefault("secondSlotCutoff", 860) // 14:20
	conf.SetDefault("termDays", 180)
	conf.SetDefault("lockTimeout", 5*time.Second)
	conf.SetDefault("recentScanWindow", 10*time.Minute)
	conf.SetDefault("healthErrorRateMax", 0.1)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	appName := conf.GetString("appName")
	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            conf.GetString("build"),
		AppName:          appName,
		DefaultFromEmail: mail.Address{Name: appName, Address: conf.GetString("defaultFromEmail")},
		AlertEmails:      parseAddresses(conf.GetString("alertEmails")),
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            conf.GetString("serverHost"),
			Addr:            conf.GetString("serverAddr"),
			DebugAddr:       conf.GetString("serverDebugAddr"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("databaseEngine"),
			Name:          conf.GetString("databaseName"),
			Host:          conf.GetString("databaseHost"),
			Port:          conf.GetString("databasePort"),
			User:          conf.GetString("databaseUser"),
			Password:      conf.GetString("databasePassword"),
			AdminUser:     conf.GetString("databaseAdminUser"),
			AdminPassword: conf.GetString("databaseAdminPassword"),
			DisableTLS:    conf.GetBool("databaseDisableTLS"),
		},
		Attendance: AttendanceConfig{
			FirstSlotBase:      conf.GetInt("firstSlotBase"),
			FirstSlotCutoff:    conf.GetInt("firstSlotCutoff"),
			SecondSlotBase:     conf.GetInt("secondSlotBase"),
			SecondSlotCutoff:   conf.GetInt("secondSlotCutoff"),
			TermDays:           conf.GetInt("termDays"),
			LockTimeout:        conf.GetDuration("lockTimeout"),
			RecentScanWindow:   conf.GetDuration("recentScanWindow"),
			HealthErrorRateMax: conf.GetFloat64("healthErrorRateMax"),
		},
	}
}

func parseAddresses(s string) []mail.Address {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	addrs := make([]mail.Address, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, mail.Address{Address: p})
		}
	}
	return addrs
}
