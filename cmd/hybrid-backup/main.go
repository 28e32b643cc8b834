package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "hybrid-backup",
		Usage: "Replicate the counseling document store into MySQL with audited, single-flight runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"HYBRID_BACKUP_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand,
			serveCommand,
			statusCommand,
			logsCommand,
			statsCommand,
			reportCommand,
			migrateCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
