// Command predict submits jobs to a queued remote compute server, streams
// their status and outputs, and inspects the local job history.
//
// Usage:
//
//	predict --url http://localhost:7860 endpoints
//	predict --url http://localhost:7860 run /predict '"hello"' 3
//	predict --history jobs.db history list --status FINISHED
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"
)

const version = "0.4.0"

func main() {
	if err := buildApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "predict"
	app.Usage = "Submit and watch jobs on a queued compute server"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Commands = []cli.Command{
		runCommand(),
		endpointsCommand(),
		historyCommand(),
	}

	confPath := defaultSettingsFile
	if home, err := os.UserHomeDir(); err == nil {
		confPath = filepath.Join(home, defaultSettingsFile)
	}

	// These are global options. Anything set here overrides the settings file.
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "conf, config, c",
			Usage: "path to the settings file",
			Value: confPath,
		},
		cli.StringFlag{
			Name:   "url, u",
			Usage:  "server root URL",
			EnvVar: "PREDICT_URL",
		},
		cli.StringFlag{
			Name:   "token",
			Usage:  "bearer token sent with every request",
			EnvVar: "PREDICT_TOKEN",
		},
		cli.StringFlag{
			Name:   "history",
			Usage:  "sqlite path or postgres DSN used to record jobs",
			EnvVar: "PREDICT_HISTORY",
		},
		cli.StringFlag{
			Name:  "level",
			Value: "warn",
			Usage: "lowest visible log level: 'debug|info|warn|error'",
		},
	}
	return app
}
