package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vibast-solutions/ms-go-record-locks/app/queue"
	"github.com/vibast-solutions/ms-go-record-locks/app/repository"
	"github.com/vibast-solutions/ms-go-record-locks/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume queued messages",
	Long:  "Consume queued messages from Redis streams.",
}

// init registers consume subcommands.
func init() {
	consumeCmd.AddCommand(consumeLockEventsCmd)
	rootCmd.AddCommand(consumeCmd)
}

var consumeLockEventsCmd = &cobra.Command{
	Use:   "lock-events [consumer_name]",
	Short: "Start the lock event consumer",
	Long:  "Start a worker that reads lock events from the Redis stream and writes them to the lock_history table.",
	Args:  cobra.ExactArgs(1),
	Run:   runConsumeLockEvents,
}

// runConsumeLockEvents starts the lock history writer.
func runConsumeLockEvents(_ *cobra.Command, args []string) {
	consumerName := args[0]

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb, err := openRedis(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	consumer := queue.NewLockEventConsumer(rdb, repository.NewLockHistoryRepository(db), consumerName, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Received shutdown signal, stopping consumer...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil {
		logger.Fatalf("Consumer error: %v", err)
	}

	logger.Info("Consumer stopped")
}
