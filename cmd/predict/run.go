package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/jdziat/simple-remote-jobs/pkg/client"
	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/storage"
)

// session bundles a client with the history store it writes to.
type session struct {
	client *client.Client
	store  *storage.GormStorage
}

func (s *session) Close() {
	_ = s.client.Close()
	if s.store != nil {
		_ = s.store.Close()
	}
}

func openSession(ctx context.Context, c *cli.Context) (*session, error) {
	conf, err := resolveSettings(c)
	if err != nil {
		return nil, err
	}
	if conf.URL == "" {
		return nil, errors.New("no server URL: pass --url or set 'url' in the settings file")
	}
	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}

	opts := conf.clientOptions(logger)
	s := &session{}
	if conf.History != "" {
		s.store, err = storage.Open(ctx, conf.History)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		opts = append(opts, client.WithHistory(s.store))
	}

	s.client, err = client.New(conf.URL, opts...)
	if err != nil {
		if s.store != nil {
			_ = s.store.Close()
		}
		return nil, err
	}
	return s, nil
}

func runCommand() cli.Command {
	const (
		fnIndexFlagName = "fn-index"
		timeoutFlagName = "timeout"
		quietFlagName   = "quiet"
	)

	return cli.Command{
		Name:      "run",
		Aliases:   []string{"predict", "submit"},
		Usage:     "submit a job and stream its outputs as JSON lines",
		ArgsUsage: "API_NAME [ARG...]",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  fnIndexFlagName,
				Value: -1,
				Usage: "address the endpoint by fn_index; every positional argument is then a job argument",
			},
			cli.DurationFlag{
				Name:  timeoutFlagName,
				Usage: "cancel the job if it has not finished after this long",
			},
			cli.BoolFlag{
				Name:  quietFlagName + ", q",
				Usage: "do not print status updates",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			fnIndex := c.Int(fnIndexFlagName)
			args := []string(c.Args())
			if fnIndex < 0 {
				if len(args) == 0 {
					return errors.New("missing API_NAME")
				}
				args = args[1:]
			}
			values := parseArgs(args)

			s, err := openSession(ctx, c)
			if err != nil {
				return err
			}
			defer s.Close()

			if !c.Bool(quietFlagName) {
				errOut := c.App.ErrWriter
				s.client.OnStatus(func(_ *job.Job, st core.StatusUpdate) {
					if line := describeStatus(st); line != "" {
						fmt.Fprintln(errOut, line)
					}
				})
			}

			var j *job.Job
			if fnIndex >= 0 {
				j, err = s.client.SubmitFn(ctx, fnIndex, values...)
			} else {
				j, err = s.client.SubmitAPI(ctx, c.Args().First(), values...)
			}
			if err != nil {
				return err
			}

			waitCtx := ctx
			if d := c.Duration(timeoutFlagName); d > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return streamOutputs(waitCtx, c.App.Writer, j)
		},
	}
}

// streamOutputs prints every output of j. If ctx ends first the job is
// cancelled and its final error returned.
func streamOutputs(ctx context.Context, w io.Writer, j *job.Job) error {
	for out, err := range j.All(ctx) {
		if err != nil {
			if ctx.Err() == nil {
				return err
			}
			j.Cancel()
			_, err = j.Wait(0)
			return err
		}
		line, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
		fmt.Fprintln(w, string(line))
	}
	return nil
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(args []string) []any {
	values := make([]any, len(args))
	for i, a := range args {
		var v any
		if err := json.Unmarshal([]byte(a), &v); err != nil {
			v = a
		}
		values[i] = v
	}
	return values
}

// describeStatus renders a status update for the terminal. Outputs are
// printed separately, so ITERATING renders as "".
func describeStatus(st core.StatusUpdate) string {
	switch st.Code {
	case core.StatusIterating:
		return ""
	case core.StatusInQueue:
		msg := "in queue"
		if st.Rank != nil && st.QueueSize != nil {
			msg = fmt.Sprintf("in queue: position %d of %d", *st.Rank+1, *st.QueueSize)
		}
		if st.ETA != nil {
			msg += ", done " + humanize.Time(st.Time.Add(*st.ETA))
		}
		return msg
	case core.StatusProgress:
		parts := make([]string, 0, len(st.ProgressData))
		for _, u := range st.ProgressData {
			switch {
			case u.Length != nil && u.Progress != nil:
				parts = append(parts, fmt.Sprintf("%s/%s %s", humanize.Ftoa(*u.Progress), humanize.Comma(int64(*u.Length)), u.Unit))
			case u.Progress != nil:
				parts = append(parts, fmt.Sprintf("%s%%", humanize.FtoaWithDigits(*u.Progress*100, 1)))
			default:
				parts = append(parts, u.Unit)
			}
		}
		return "progress: " + strings.Join(parts, ", ")
	case core.StatusLog:
		if st.Log != nil {
			return fmt.Sprintf("log [%s]: %s", strings.ToLower(st.Log.Level), st.Log.Message)
		}
	case core.StatusFinished:
		if st.Success != nil && !*st.Success {
			return "failed"
		}
		return "finished"
	}
	return strings.ToLower(strings.ReplaceAll(string(st.Code), "_", " "))
}
