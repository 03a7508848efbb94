// Command auditlog consumes entry audit events from RabbitMQ and appends
// them to a log file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/iliyamo/address-book/internal/logging"
	"github.com/iliyamo/address-book/internal/queue"
)

type settings struct {
	RabbitMQURL string `envconfig:"RABBITMQ_URL" required:"true"`
	LogPath     string `envconfig:"AUDIT_LOG_PATH" default:"logs/audit.log"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Env         string `envconfig:"APP_ENV" default:"development"`
}

func main() {
	_ = godotenv.Load()
	var s settings
	if err := envconfig.Process("", &s); err != nil {
		logging.New("info", false).WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(s.LogLevel, s.Env == "production")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("path", s.LogPath).Info("audit consumer starting")
	if err := queue.StartAuditConsumer(ctx, s.RabbitMQURL, s.LogPath, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("audit consumer stopped")
	}
}
