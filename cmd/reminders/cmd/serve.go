package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"evaluation_reminders/internal/infra/httpserver"
	"evaluation_reminders/internal/infra/logger"
	"evaluation_reminders/internal/infra/metrics"
	"evaluation_reminders/internal/infra/scheduler"
	"evaluation_reminders/internal/infra/telegram"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cron scheduler, operator bot and ops HTTP endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		migrate, _ := cmd.Flags().GetBool("migrate")

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		mainLogger := logger.Component("main")
		cfg := a.cfg

		if migrate {
			if err := migrateUp(a.db); err != nil {
				return err
			}
		}

		recorder := metrics.NewRecorder()
		observers := []scheduler.RunObserver{recorder}

		if cfg.TelegramEnabled() {
			botLogger := logger.Component("telegram")
			bot, err := telegram.NewBot(cfg.TelegramToken, botLogger)
			if err != nil {
				return err
			}
			reporter := telegram.NewReporter(telegram.NewTelebotAdapter(bot), cfg.OperatorTelegramID, botLogger)
			observers = append(observers, reporter)

			cmds := telegram.NewOperatorCommands(a.admin, a.reminders, recorder.ObserveBatch, botLogger)
			telegram.RegisterBotCommands(bot, cfg.OperatorTelegramID, botLogger)
			telegram.RegisterOperatorHandlers(ctx, bot, cmds, cfg.OperatorTelegramID, botLogger)

			go bot.Start()
			defer bot.Stop()
			mainLogger.Info("Operator bot started.")
		} else {
			mainLogger.Info("TELEGRAM_TOKEN not set; operator bot disabled.")
		}

		sched := scheduler.NewReminderScheduler(a.reminders, a.closing, logger.Log.WithField("environment", cfg.Environment),
			cfg.CronSpecReminders, cfg.CronSpecClosingReminders, observers...)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		srv := &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpserver.NewRouter(httpserver.Deps{
				DB:             a.db,
				MetricsHandler: recorder.Handler(),
				Metrics:        a.metrics,
				Responses:      a.responses,
				Logger:         logger.Component("http"),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening.")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case <-ctx.Done():
			mainLogger.Info("Shutting down application...")
		case err := <-serveErr:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "Apply pending migrations before starting")
	rootCmd.AddCommand(serveCmd)
}
