package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vidgen/internal/videoapi"
)

// eventPrinter is the presentation sink for interactive commands: it prints
// every job change and nudges waiting loops to re-check their condition.
type eventPrinter struct {
	changed chan struct{}
}

func newEventPrinter() *eventPrinter {
	return &eventPrinter{changed: make(chan struct{}, 1)}
}

func (p *eventPrinter) JobUpserted(job videoapi.Job) {
	line := fmt.Sprintf("%s  %s", job.ID, job.Status)
	if job.Progress != nil {
		line += fmt.Sprintf("  %d%%", *job.Progress)
	}
	if job.Status == videoapi.StatusFailed && job.Error != nil && job.Error.Message != "" {
		line += "  " + job.Error.Message
	}
	if job.LocalArtifact != "" {
		line += "  " + job.LocalArtifact
	}
	fmt.Println(line)
	p.notify()
}

func (p *eventPrinter) JobRemoved(jobID string) {
	fmt.Printf("%s  removed\n", jobID)
	p.notify()
}

func (p *eventPrinter) JobError(jobID string, err error) {
	fmt.Printf("%s  error: %v\n", jobID, err)
	p.notify()
}

func (p *eventPrinter) notify() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// waitSettled blocks until every listed job is terminal or gone from the
// cache, or the context ends.
func waitSettled(ctx context.Context, rt *runtime, printer *eventPrinter, ids []string) error {
	for {
		settled := true
		for _, id := range ids {
			if job, ok := rt.orc.Jobs().Get(id); ok && !job.Status.Terminal() {
				settled = false
				break
			}
		}
		if settled {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-printer.changed:
		case <-time.After(2 * time.Second):
		}
	}
}

func newSubmitCmd() *cobra.Command {
	var (
		model      string
		seconds    int
		size       string
		templateID string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "submit [prompt...]",
		Short: "Submit a new generation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := newEventPrinter()
			rt, err := newRuntime(printer)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" && templateID != "" {
				tpl, err := rt.templates.Get(ctx, templateID)
				if err != nil {
					return err
				}
				prompt = tpl.Prompt
			}

			job, err := rt.orc.Submit(ctx, videoapi.CreateJobRequest{
				Prompt:  prompt,
				Model:   model,
				Seconds: seconds,
				Size:    size,
			})
			if err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return waitSettled(ctx, rt, printer, []string{job.ID})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "generation model (default from config)")
	cmd.Flags().IntVar(&seconds, "seconds", 0, "clip length in seconds (default from config)")
	cmd.Flags().StringVar(&size, "size", "", "output resolution, e.g. 1280x720 (default from config)")
	cmd.Flags().StringVar(&templateID, "template", "", "use a stored template's prompt")
	cmd.Flags().BoolVar(&watch, "watch", false, "stay attached until the job settles")
	return cmd
}

func newListCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			if refresh {
				if err := rt.orc.RefreshAll(ctx); err != nil {
					return err
				}
			}
			jobs := rt.orc.Jobs().List()
			if len(jobs) == 0 {
				fmt.Println("No jobs.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tMODEL\tCREATED")
			for _, job := range jobs {
				progress := "-"
				if job.Progress != nil {
					progress = fmt.Sprintf("%d%%", *job.Progress)
				}
				created := "-"
				if job.CreatedAt > 0 {
					created = time.Unix(job.CreatedAt, 0).Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.ID, job.Status, progress, job.Model, created)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", true, "reconcile with the server before listing")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current server state of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			job, err := rt.client.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id:      %s\n", job.ID)
			fmt.Printf("status:  %s\n", job.Status)
			if job.Progress != nil {
				fmt.Printf("progress: %d%%\n", *job.Progress)
			}
			fmt.Printf("model:   %s\n", job.Model)
			if job.Seconds > 0 {
				fmt.Printf("seconds: %d\n", job.Seconds)
			}
			if job.Size != "" {
				fmt.Printf("size:    %s\n", job.Size)
			}
			if job.CreatedAt > 0 {
				fmt.Printf("created: %s\n", time.Unix(job.CreatedAt, 0).Format(time.RFC3339))
			}
			if job.CompletedAt != nil {
				fmt.Printf("completed: %s\n", time.Unix(*job.CompletedAt, 0).Format(time.RFC3339))
			}
			if job.Error != nil && job.Error.Message != "" {
				fmt.Printf("error:   %s (%s)\n", job.Error.Message, job.Error.Code)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [job-id...]",
		Short: "Track jobs until they settle, printing every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := newEventPrinter()
			rt, err := newRuntime(printer)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			if err := rt.orc.RefreshAll(ctx); err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				for _, job := range rt.orc.Jobs().List() {
					if !job.Status.Terminal() {
						ids = append(ids, job.ID)
					}
				}
			}
			if len(ids) == 0 {
				fmt.Println("Nothing in flight.")
				return nil
			}
			return waitSettled(ctx, rt, printer, ids)
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a completed job's artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			if err := rt.orc.RefreshAll(ctx); err != nil {
				return err
			}
			path, err := rt.orc.RetrieveArtifact(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job remotely and locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			if err := rt.orc.DeleteJob(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted", args[0])
			return nil
		},
	}
}
