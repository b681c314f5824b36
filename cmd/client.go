package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-record-locks/app/client"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
	"github.com/vibast-solutions/ms-go-record-locks/config"
)

var editCmd = &cobra.Command{
	Use:   "edit [record_id] [lock_type]",
	Short: "Hold a record lock from the terminal",
	Long: "Acquire a lock on a record and keep it alive while you type. Every line on stdin counts as activity; " +
		"the lock is released on EOF or interrupt.",
	Args: cobra.ExactArgs(2),
	RunE: runEdit,
}

var watchCmd = &cobra.Command{
	Use:   "watch [record_id...]",
	Short: "Report when records become busy or free",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

var editTarget string

// init registers the client commands.
func init() {
	editCmd.Flags().StringVar(&editTarget, "target", "", "target status, only with lock type STATUS")
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(watchCmd)
}

func clientConfig(cfg *config.Config) client.Config {
	return client.Config{
		Lease:            cfg.LockLease,
		RenewInterval:    cfg.ClientRenewInterval,
		WarningMargin:    cfg.ClientWarningMargin,
		InactivityWindow: cfg.ClientInactivityWindow,
		PollInterval:     cfg.ClientPollInterval,
		MaxRenewFailures: 2,
		Retry:            client.RetryPolicy{MaxAttempts: cfg.ClientRetryAttempts, Delay: cfg.ClientRetryDelay},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	lockType, target, err := parseEditArgs(args[1], editTarget)
	if err != nil {
		return err
	}

	backend := client.NewHTTPBackend(cfg.ClientBaseURL, cfg.ClientToken, nil)
	session, err := client.NewSession(backend, clientConfig(cfg), client.LogListener{Logger: logger}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var handle *client.Handle
	if target != "" {
		handle, err = session.AcquireStatusLock(ctx, args[0], target)
		if err != nil {
			return err
		}
	} else {
		handle, err = session.AcquireLock(ctx, args[0], lockType)
		if err != nil {
			return err
		}
	}
	defer handle.Release(context.Background())

	poller := client.NewPoller(backend, handle.Lock().HolderID, cfg.ClientPollInterval, logger)
	poller.Track(session)
	go poller.Run(ctx)

	l := handle.Lock()
	fmt.Fprintf(cmd.OutOrStdout(), "holding %s on %s until %s, press Ctrl-D to release\n", l.LockType, l.RecordID, l.ExpiresAt.Local().Format("15:04:05"))

	lines := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- struct{}{}
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-lines:
			if !ok {
				return nil
			}
			if session.State() != client.StateHeld {
				return fmt.Errorf("lock on %s is no longer held", args[0])
			}
			session.Touch()
		}
	}
}

// parseEditArgs validates the lock type argument and the optional --target.
// A target only makes sense for a STATUS lock.
func parseEditArgs(lockTypeArg, targetArg string) (entity.LockType, entity.RecordStatus, error) {
	lockType, err := entity.ParseLockType(lockTypeArg)
	if err != nil {
		return "", "", err
	}
	if targetArg == "" {
		return lockType, "", nil
	}
	if lockType != entity.LockTypeStatus {
		return "", "", fmt.Errorf("--target requires lock type %s, got %s", entity.LockTypeStatus, lockType)
	}
	target, err := entity.ParseRecordStatus(targetArg)
	if err != nil {
		return "", "", err
	}
	return lockType, target, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	backend := client.NewHTTPBackend(cfg.ClientBaseURL, cfg.ClientToken, nil)
	poller := client.NewPoller(backend, "", cfg.ClientPollInterval, logger)
	poller.OnBusy = func(recordID string, status entity.LockStatus) {
		logger.WithFields(logrus.Fields{
			"record_id":  recordID,
			"holder_id":  status.HolderID,
			"lock_type":  status.LockType,
			"expires_at": status.ExpiresAt,
		}).Info("record busy")
	}
	poller.OnFree = func(recordID string) {
		logger.WithField("record_id", recordID).Info("record free")
	}
	for _, id := range args {
		poller.Watch(id)
	}

	ctx, cancel := signalContext()
	defer cancel()

	poller.Tick(ctx)
	poller.Run(ctx)
	return nil
}
