package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli"
)

func endpointsCommand() cli.Command {
	return cli.Command{
		Name:    "endpoints",
		Aliases: []string{"ls", "api"},
		Usage:   "list the endpoints the server exposes",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			s, err := openSession(ctx, c)
			if err != nil {
				return err
			}
			defer s.Close()

			set, err := s.client.Endpoints(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FN_INDEX\tAPI_NAME\tQUEUE\tGENERATOR")
			for _, ep := range set.All() {
				idx := "-"
				if ep.FnIndex != nil {
					idx = strconv.Itoa(*ep.FnIndex)
				}
				name := ep.APIName
				if name == "" {
					name = "(hidden)"
				}
				queue := "default"
				if ep.UseQueue != nil {
					queue = strconv.FormatBool(*ep.UseQueue)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", idx, name, queue, ep.Generator)
			}
			return w.Flush()
		},
	}
}
