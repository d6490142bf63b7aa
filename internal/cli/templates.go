package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vidgen/internal/templates"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage reusable prompt templates",
	}
	cmd.AddCommand(newTemplatesListCmd(), newTemplatesAddCmd(), newTemplatesRemoveCmd())
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			all, err := rt.templates.List(ctx)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("No templates.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tUPDATED\tPROMPT")
			for _, tpl := range all {
				prompt := tpl.Prompt
				if len(prompt) > 60 {
					prompt = prompt[:60] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					tpl.ID, tpl.Title, time.Unix(tpl.UpdatedAt, 0).Format(time.RFC3339), prompt)
			}
			return w.Flush()
		},
	}
}

func newTemplatesAddCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add <prompt...>",
		Short: "Store a new template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			tpl, err := rt.templates.Put(ctx, templates.Template{
				Title:  title,
				Prompt: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			fmt.Println(tpl.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "template title")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newTemplatesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <template-id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			return rt.templates.Delete(ctx, args[0])
		},
	}
}
