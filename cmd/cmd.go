// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// stringArg returns the parsed value of the named positional argument,
// mirroring Command.StringArg from newer cli/v3 releases, which is not
// present in the pinned version.
func stringArg(cmd *cli.Command, name string) string {
	for _, arg := range cmd.Arguments {
		if sa, ok := arg.(*cli.StringArg); ok && sa.Name == name {
			if sa.Values != nil && len(*sa.Values) > 0 {
				return (*sa.Values)[0]
			}
			return sa.Value
		}
	}
	return ""
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the config file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize configuration file and database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// serveCommand runs the background daemon
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the transfer daemon and message bridge",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Override the bridge listen address (host:port)",
			},
		},
		Action: r.Serve,
	}
}

// transferCommand enqueues a transfer via the daemon
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "transfer",
		Aliases: []string{"t"},
		Usage:   "Queue a share link for transfer",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "url",
				Max:  1,
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "code",
				Usage: "Access code for the share",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow progress until the task finishes",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the resulting share link in a browser (implies --watch)",
			},
		},
		Action: r.Transfer,
	}
}

// tasksCommand handles task queue operations
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect and manage transfer tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all tasks in queue order",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TasksList,
			},
			{
				Name:  "cancel",
				Usage: "Cancel a pending or running task",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
						Max:  1,
					},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.TasksCancel,
			},
			{
				Name:  "delete",
				Usage: "Delete a task from the queue",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
						Max:  1,
					},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.TasksDelete,
			},
			{
				Name:   "clear",
				Usage:  "Remove finished tasks from history",
				Flags:  []cli.Flag{configFlag()},
				Action: r.TasksClear,
			},
			{
				Name:  "export",
				Usage: "Export task history",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown, or table",
						Value:   "table",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (defaults to stdout)",
					},
				},
				Action: r.TasksExport,
			},
		},
	}
}

// cookiesCommand handles drive session operations
func cookiesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cookies",
		Usage: "Inspect and refresh drive sessions",
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Show session availability per provider",
				Flags:  []cli.Flag{configFlag()},
				Action: r.CookiesGet,
			},
			{
				Name:   "refresh",
				Usage:  "Re-read cookies from the configured sources",
				Flags:  []cli.Flag{configFlag()},
				Action: r.CookiesRefresh,
			},
			{
				Name:  "push",
				Usage: "Hand a captured cookie to the daemon",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "provider",
						Aliases:  []string{"p"},
						Usage:    "Target provider: quark or baidu",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "cookie",
						Usage: "Cookie header value",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to a 'Copy as cURL' export to extract the cookie from",
					},
				},
				Action: r.CookiesPush,
			},
		},
	}
}

// configCommand inspects and updates the daemon's configuration
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and update the daemon's configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the daemon's public configuration",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.ConfigShow,
			},
			{
				Name:  "set",
				Usage: "Update configuration values on the daemon",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "banned-keywords",
						Usage: "Comma-separated keyword blocklist",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Retry budget per provider call",
						Value: -1,
					},
					&cli.IntFlag{
						Name:  "retry-delay",
						Usage: "Delay between retries in milliseconds",
						Value: -1,
					},
					&cli.StringFlag{
						Name:  "source-folder",
						Usage: "Default folder on the source drive",
					},
					&cli.StringFlag{
						Name:  "dest-folder",
						Usage: "Default folder on the destination drive",
					},
				},
				Action: r.ConfigSet,
			},
		},
	}
}

// tuiCommand launches the interactive task monitor
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Launch the interactive task monitor",
		Flags:  []cli.Flag{configFlag()},
		Action: r.TUI,
	}
}
