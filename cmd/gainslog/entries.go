// cmd/gainslog/entries.go
package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gainslog/internal/models"
	"gainslog/internal/reconcile"
)

func newAddCmd(root *rootOptions) *cobra.Command {
	var (
		in       reconcile.ManualInput
		imageURL string
		voice    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Log a food; missing nutrition is estimated",
		Example: `  gainslog add --title Banana --calories 105
  gainslog add --image https://example.com/lunch.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var out reconcile.Outcome
			if imageURL != "" {
				out, err = a.flow.CreateFromCapture(cmd.Context(), reconcile.CaptureInput{
					ImageURL:    imageURL,
					Title:       in.Title,
					Description: in.Description,
					Nutrients:   in.Nutrients,
					Date:        in.Date,
				})
			} else {
				if voice {
					in.Source = models.SourceVoice
				}
				out, err = a.flow.CreateManual(cmd.Context(), in)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out.Notice != "" {
				fmt.Fprintln(w, out.Notice)
			}
			if out.Result == reconcile.ResultDeleted || out.Entry.Date == "" {
				return nil
			}
			printEntries(w, []models.FoodLogEntry{out.Entry})
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "Short name of the food")
	f.StringVar(&in.Description, "description", "", "What was eaten")
	f.StringVar(&in.Nutrients.Calories, "calories", "", "Calories (kcal)")
	f.StringVar(&in.Nutrients.Protein, "protein", "", "Protein (g)")
	f.StringVar(&in.Nutrients.Carbs, "carbs", "", "Carbohydrates (g)")
	f.StringVar(&in.Nutrients.Fat, "fat", "", "Fat (g)")
	f.StringVar(&in.Date, "date", "", "Day to log on (YYYY-MM-DD, defaults to today)")
	f.StringVar(&imageURL, "image", "", "URL of a food photo to estimate from")
	f.BoolVar(&voice, "voice", false, "Mark the entry as dictated")
	return cmd
}

func newListCmd(root *rootOptions) *cobra.Command {
	var (
		date  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logged foods, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.store.Entries()
			if date != "" {
				entries = a.store.EntriesForDate(date)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No foods logged yet. Run 'gainslog add' first")
				return nil
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Only this day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}

func newTotalsCmd(root *rootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Show a day's nutrition against your targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if date == "" {
				date = time.Now().Format(models.DateLayout)
			}
			p := models.NewDailyProgress(a.store.DailyTotals(date), cfg.Targets)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Date:    %s\n", p.Date)
			fmt.Fprintf(w, "Entries: %d", p.Entries)
			if p.Estimating > 0 {
				fmt.Fprintf(w, " (%d still estimating)", p.Estimating)
			}
			fmt.Fprintln(w)

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NUTRIENT\tTOTAL\tTARGET\tPERCENT")
			fmt.Fprintf(tw, "calories\t%.0f\t%.0f\t%.0f%%\n", p.Totals.Calories, p.Targets.Calories, p.Percent.Calories)
			fmt.Fprintf(tw, "protein\t%.1f\t%.0f\t%.0f%%\n", p.Totals.Protein, p.Targets.Protein, p.Percent.Protein)
			fmt.Fprintf(tw, "carbs\t%.1f\t%.0f\t%.0f%%\n", p.Totals.Carbs, p.Targets.Carbs, p.Percent.Carbs)
			fmt.Fprintf(tw, "fat\t%.1f\t%.0f\t%.0f%%\n", p.Totals.Fat, p.Targets.Fat, p.Percent.Fat)
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to total (YYYY-MM-DD, defaults to today)")
	return cmd
}

func newDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete a logged food",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.store.Get(args[0]); !ok {
				return fmt.Errorf("entry %q not found", args[0])
			}
			if err := a.flow.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printEntries(w io.Writer, entries []models.FoodLogEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tKCAL\tPROTEIN\tCARBS\tFAT\tCONF\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%.1f\t%.1f\t%.1f\t%d\t%s\n",
			e.ID,
			e.Date,
			truncate(e.DisplayTitle(), 32),
			e.Calories,
			e.Protein,
			e.Carbs,
			e.Fat,
			e.EstimationConfidence,
			e.Status,
		)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
