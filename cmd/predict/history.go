package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v2"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/storage"
)

func historyCommand() cli.Command {
	return cli.Command{
		Name:  "history",
		Usage: "inspect jobs recorded in the local history store",
		Subcommands: []cli.Command{
			historyList(),
			historyShow(),
			historySummary(),
			historyPurge(),
		},
	}
}

func openHistory(ctx context.Context, c *cli.Context) (*storage.GormStorage, error) {
	conf, err := resolveSettings(c)
	if err != nil {
		return nil, err
	}
	if conf.History == "" {
		return nil, errors.New("no history store: pass --history or set 'history' in the settings file")
	}
	return storage.Open(ctx, conf.History)
}

func historyList() cli.Command {
	const (
		statusFlagName = "status"
		apiFlagName    = "api"
		limitFlagName  = "limit"
		offsetFlagName = "offset"
	)

	return cli.Command{
		Name:  "list",
		Usage: "list recent jobs, newest first",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  statusFlagName,
				Usage: "only show jobs in this status, e.g. FINISHED or CANCELLED",
			},
			cli.StringFlag{
				Name:  apiFlagName,
				Usage: "only show jobs submitted to this api name",
			},
			cli.IntFlag{
				Name:  limitFlagName,
				Value: 20,
				Usage: "maximum number of jobs to show",
			},
			cli.IntFlag{
				Name:  offsetFlagName,
				Usage: "skip this many jobs",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			store, err := openHistory(ctx, c)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := core.JobFilter{
				Status:  core.StatusCode(strings.ToUpper(c.String(statusFlagName))),
				APIName: c.String(apiFlagName),
				Limit:   c.Int(limitFlagName),
				Offset:  c.Int(offsetFlagName),
			}
			if filter.APIName != "" && !strings.HasPrefix(filter.APIName, "/") {
				filter.APIName = "/" + filter.APIName
			}
			recs, total, err := store.ListJobs(ctx, filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAPI_NAME\tSTATUS\tSUBMITTED\tDURATION\tERROR")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID, rec.APIName, recordStatus(rec), humanize.Time(rec.SubmittedAt),
					sinceDuration(duration(rec)), truncate(rec.LastError, 60))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "showing %d of %s jobs\n", len(recs), humanize.Comma(total))
			return nil
		},
	}
}

// recordView is the YAML rendering of one history record.
type recordView struct {
	ID          string   `yaml:"id"`
	EventID     string   `yaml:"event_id,omitempty"`
	APIName     string   `yaml:"api_name,omitempty"`
	FnIndex     *int     `yaml:"fn_index,omitempty"`
	Session     string   `yaml:"session_hash"`
	Status      string   `yaml:"status"`
	Args        any      `yaml:"args,omitempty"`
	Result      any      `yaml:"result,omitempty"`
	Outputs     int      `yaml:"outputs"`
	Error       string   `yaml:"error,omitempty"`
	Submitted   string   `yaml:"submitted"`
	Duration    string   `yaml:"duration,omitempty"`
	Annotations []string `yaml:"notes,omitempty"`
}

func historyShow() cli.Command {
	return cli.Command{
		Name:      "show",
		Usage:     "print one job record as YAML",
		ArgsUsage: "JOB_ID",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("missing JOB_ID")
			}
			ctx := context.Background()
			store, err := openHistory(ctx, c)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetJob(ctx, id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("job '%s' not found", id)
			}

			out, err := yaml.Marshal(newRecordView(rec))
			if err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
			_, err = c.App.Writer.Write(out)
			return err
		},
	}
}

func newRecordView(rec *core.JobRecord) recordView {
	v := recordView{
		ID:        rec.ID,
		EventID:   rec.EventID,
		APIName:   rec.APIName,
		FnIndex:   rec.FnIndex,
		Session:   rec.SessionHash,
		Status:    recordStatus(rec),
		Outputs:   rec.OutputCount,
		Error:     rec.LastError,
		Submitted: rec.SubmittedAt.Format(time.RFC3339),
	}
	if d := duration(rec); d > 0 {
		v.Duration = sinceDuration(d)
	}
	if len(rec.Args) > 0 {
		if err := json.Unmarshal(rec.Args, &v.Args); err != nil {
			v.Annotations = append(v.Annotations, "args are not valid JSON")
		}
	}
	if len(rec.Result) > 0 {
		if err := json.Unmarshal(rec.Result, &v.Result); err != nil {
			v.Annotations = append(v.Annotations, "result is not valid JSON")
		}
	}
	return v
}

func historySummary() cli.Command {
	return cli.Command{
		Name:  "summary",
		Usage: "count jobs by outcome",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			store, err := openHistory(ctx, c)
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := store.Summarize(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "total\t%s\n", humanize.Comma(sum.Total))
			fmt.Fprintf(w, "succeeded\t%s\n", humanize.Comma(sum.Succeeded))
			fmt.Fprintf(w, "failed\t%s\n", humanize.Comma(sum.Failed))
			fmt.Fprintf(w, "cancelled\t%s\n", humanize.Comma(sum.Cancelled))
			fmt.Fprintf(w, "running\t%s\n", humanize.Comma(sum.Running))
			return w.Flush()
		},
	}
}

func historyPurge() cli.Command {
	const olderThanFlagName = "older-than"

	return cli.Command{
		Name:  "purge",
		Usage: "delete finished and cancelled jobs",
		Flags: []cli.Flag{
			cli.DurationFlag{
				Name:  olderThanFlagName,
				Value: 7 * 24 * time.Hour,
				Usage: "only delete jobs completed longer ago than this",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			store, err := openHistory(ctx, c)
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().Add(-c.Duration(olderThanFlagName))
			n, err := store.PurgeJobs(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "purged %s jobs completed before %s\n", humanize.Comma(n), humanize.Time(cutoff))
			return nil
		},
	}
}

// recordStatus reports FAILED for a finished job that carries an error.
func recordStatus(rec *core.JobRecord) string {
	if rec.Failed() {
		return "FAILED"
	}
	return string(rec.Status)
}

func duration(rec *core.JobRecord) time.Duration {
	if rec.StartedAt == nil || rec.CompletedAt == nil {
		return 0
	}
	return rec.CompletedAt.Sub(*rec.StartedAt)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// sinceDuration formats a duration as rounded text, "-" for zero.
func sinceDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
