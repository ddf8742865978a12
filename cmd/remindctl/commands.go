package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/kursadbilgin/reminder-engine/internal/app"
	"github.com/kursadbilgin/reminder-engine/internal/config"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/spf13/cobra"
)

var (
	headerColor = color.New(color.Bold)
	errorColor  = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
)

func statusColor(status string) *color.Color {
	switch status {
	case domain.LogStatusSent.String():
		return color.New(color.FgGreen)
	case domain.LogStatusFailed.String(), domain.ReminderStatusCancelled.String():
		return color.New(color.FgRed)
	case domain.LogStatusSkipped.String():
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// withApp builds the application for one command and tears it down after.
func withApp(opts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "remindctl")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.StartEmitter(ctx)
	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pass of a periodic job",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reminders",
		Short: "Scan active leases and create due reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, a *app.App) error {
				summary, err := a.Jobs.RunReminders(ctx)
				if err != nil {
					return err
				}
				headerColor.Println("Reminder scheduler pass")
				fmt.Printf("  leases scanned: %d\n  created:        %d\n  duplicates:     %d\n  failed:         %d\n",
					summary.LeasesScanned, summary.Created, summary.Duplicates, summary.Failed)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "escalations",
		Short: "Evaluate open requests and fire crossed escalation levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, a *app.App) error {
				summary, err := a.Jobs.RunEscalations(ctx)
				if err != nil {
					return err
				}
				headerColor.Println("Escalation resolver pass")
				fmt.Printf("  requests scanned: %d\n  levels fired:     %d\n  failed:           %d\n",
					summary.RequestsScanned, summary.LevelsFired, summary.Failed)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Release stale claims and enqueue due reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(app.Options{Queue: true}, func(ctx context.Context, a *app.App) error {
				summary, err := a.Jobs.RunDispatch(ctx)
				if err != nil {
					return err
				}
				headerColor.Println("Dispatch scan")
				fmt.Printf("  released:  %d\n  published: %d\n  failed:    %d\n",
					summary.Released, summary.Published, summary.Failed)
				return nil
			})
		},
	})

	return cmd
}

func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs [reminder-id]",
		Short: "Show a reminder and its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, a *app.App) error {
				reminder, err := a.Reminders.GetByID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("reminder %s: %w", args[0], err)
				}

				headerColor.Printf("Reminder %s\n", reminder.ID)
				fmt.Printf("  lease:     %s\n  type:      %s\n  run date:  %s\n  status:    %s\n  attempts:  %d\n",
					reminder.LeaseID, reminder.Type, reminder.RunDate,
					statusColor(reminder.Status.String()).Sprint(reminder.Status), reminder.Attempts)

				logs, err := a.ReminderLogs.ListByReminderID(ctx, reminder.ID)
				if err != nil {
					return err
				}

				fmt.Println()
				headerColor.Println("Audit trail")
				if len(logs) == 0 {
					dimColor.Println("  (no entries)")
					return nil
				}
				for _, l := range logs {
					channel := l.Channel.String()
					if channel == "" {
						channel = "-"
					}
					detail := ""
					switch {
					case l.Error != nil:
						detail = *l.Error
					case l.Response != nil:
						detail = *l.Response
					}
					fmt.Printf("  %s  %-7s %s  %s %s\n",
						dimColor.Sprint(l.CreatedAt.Format("2006-01-02 15:04:05")),
						channel,
						statusColor(l.Status.String()).Sprintf("%-7s", l.Status),
						detail,
						dimColor.Sprintf("(%s)", l.Initiator),
					)
				}
				return nil
			})
		},
	}
}

func escalationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "escalations [request-id]",
		Short: "Show fired escalation levels and their delivery trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, a *app.App) error {
				events, err := a.Escalations.ListByRequestID(ctx, args[0])
				if err != nil {
					return err
				}
				logs, err := a.Escalations.ListLogsByRequestID(ctx, args[0])
				if err != nil {
					return err
				}

				headerColor.Printf("Request %s\n", args[0])
				if len(events) == 0 {
					dimColor.Println("  (no escalation levels fired)")
					return nil
				}

				byEvent := make(map[string][]string)
				for _, l := range logs {
					target := l.Recipient
					if target == "" {
						target = "-"
					}
					byEvent[l.EventID] = append(byEvent[l.EventID], fmt.Sprintf("%-7s %s %s",
						l.Channel, statusColor(l.Status.String()).Sprintf("%-7s", l.Status), target))
				}

				sort.Slice(events, func(i, j int) bool { return events[i].Level < events[j].Level })
				for _, e := range events {
					fmt.Printf("  level %d  %s  %s\n", e.Level, e.Role, dimColor.Sprint(e.TriggeredAt.Format("2006-01-02 15:04:05")))
					for _, line := range byEvent[e.ID] {
						fmt.Printf("    %s\n", line)
					}
				}
				return nil
			})
		},
	}
}

func dispatchNowCmd() *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "dispatch-now [reminder-id]",
		Short: "Dispatch a PENDING reminder immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(operator) == "" {
				return fmt.Errorf("--operator is required")
			}
			return withApp(app.Options{}, func(ctx context.Context, a *app.App) error {
				outcome, err := a.Orchestrator.DispatchNow(ctx, args[0], operator)
				if err != nil {
					return err
				}

				headerColor.Printf("Reminder %s: %s\n", outcome.ReminderID, statusColor(outcome.Status.String()).Sprint(outcome.Status))
				if outcome.Skipped {
					dimColor.Println("  skipped: reminder was not claimable")
				}
				if outcome.Reason != "" {
					fmt.Printf("  reason: %s\n", outcome.Reason)
				}
				channels := make([]string, 0, len(outcome.Channels))
				for channel := range outcome.Channels {
					channels = append(channels, channel.String())
				}
				sort.Strings(channels)
				for _, channel := range channels {
					status := outcome.Channels[domain.Channel(channel)].String()
					fmt.Printf("  %-7s %s\n", channel, statusColor(status).Sprint(status))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&operator, "operator", "o", os.Getenv("USER"), "Operator name recorded in the audit trail")
	return cmd
}

func retryCmd() *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "retry [reminder-id] [channel]",
		Short: "Re-attempt one channel whose latest attempt FAILED",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(operator) == "" {
				return fmt.Errorf("--operator is required")
			}
			channel, err := domain.ParseChannelFromString(args[1])
			if err != nil {
				return err
			}

			return withApp(app.Options{}, func(ctx context.Context, a *app.App) error {
				status, err := a.Orchestrator.RetryChannel(ctx, args[0], channel, operator)
				if err != nil {
					return err
				}
				fmt.Printf("%s retry: %s\n", channel, statusColor(status.String()).Sprint(status))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&operator, "operator", "o", os.Getenv("USER"), "Operator name recorded in the audit trail")
	return cmd
}
