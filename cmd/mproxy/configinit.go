package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/lucasjones/reggen"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/msgproxy/vchannel/internal/vchannel"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "config file tooling",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "interactively scaffold a channel config file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Value: "config.example.yaml"},
				},
				Action: runConfigInit,
			},
		},
	}
}

func runConfigInit(_ context.Context, cmd *cli.Command) error {
	examplePlaceholder, err := reggen.Generate(vchannel.NamePattern.String(), 1)
	if err != nil {
		examplePlaceholder = "support-alerts"
	}

	var (
		name        string
		workerClass = "HTTP"
		queueSize   = "100"
		maxAttempts = "5"
		url         string
		botID       string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Channel name").
				Description("must match " + vchannel.NamePattern.String()).
				Placeholder(examplePlaceholder).
				Value(&name).
				Validate(func(s string) error {
					if !vchannel.NamePattern.MatchString(s) {
						return fmt.Errorf("must match %s", vchannel.NamePattern.String())
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Worker class").
				Options(
					huh.NewOption("HTTP (reference delivery worker)", "HTTP"),
					huh.NewOption("Stub (local/test worker)", "Stub"),
				).
				Value(&workerClass),
			huh.NewInput().
				Title("Queue size").
				Value(&queueSize),
			huh.NewInput().
				Title("Max delivery attempts").
				Value(&maxAttempts),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Upstream base URL").
				Placeholder("https://api.example.com").
				Value(&url),
			huh.NewInput().
				Title("Bot/credential id").
				Value(&botID),
		).WithHideFunc(func() bool { return workerClass != "HTTP" }),
	)

	if err := form.Run(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	size, _ := strconv.Atoi(queueSize)
	attempts, _ := strconv.Atoi(maxAttempts)

	options := map[string]any{}
	if workerClass == "HTTP" {
		options["url"] = url
		options["bot_id"] = botID
	}

	out := map[string]any{
		name: map[string]any{
			"worker": map[string]any{
				"class":   workerClass,
				"options": options,
			},
			"queue": map[string]any{
				"class":      "BoundedQueue",
				"queue_size": size,
			},
			"maxAttempts": attempts,
		},
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	if err := os.WriteFile(cmd.String("out"), data, 0o644); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	fmt.Printf("wrote channel config to %s\n", cmd.String("out"))
	return nil
}
