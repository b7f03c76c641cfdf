// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/intake"
	"github.com/bcem/triage/internal/lifecycle"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/render"
	"github.com/bcem/triage/internal/seed"
	"github.com/bcem/triage/internal/synth"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(client *backend.Client, cfg *config.Config, dedup intake.Deduper) *cli.App {
	app := &cli.App{
		Name:  "triagectl",
		Usage: "Operate the claims triage backend from the shell",
		Commands: []*cli.Command{
			ingestCmd(client),
			categorizeCmd(client),
			listCmd(client),
			intakeCmd(client, cfg, dedup),
			boardCmd(client, cfg),
			ticketCmd(client),
			previewCmd(client),
			seedCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func ingestCmd(client *backend.Client) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Pull new messages from the claims mailbox",
		Action: func(c *cli.Context) error {
			res, err := client.Ingest(c.Context)
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, res)
		},
	}
}

func categorizeCmd(client *backend.Client) *cli.Command {
	return &cli.Command{
		Name:  "categorize",
		Usage: "Categorize and assign uncategorized emails",
		Action: func(c *cli.Context) error {
			res, err := client.Categorize(c.Context)
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, res)
		},
	}
}

func listCmd(client *backend.Client) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List emails by processing status or assigned agent",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Value: backend.StatusNew, Usage: "Processing status: new|categorized"},
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Usage: "Assigned agent ID (overrides --status)"},
		},
		Action: func(c *cli.Context) error {
			var (
				emails []models.Email
				err    error
			)
			if agent := c.String("agent"); agent != "" {
				emails, err = client.ListByAgent(c.Context, agent)
			} else {
				emails, err = client.ListEmails(c.Context, c.String("status"))
			}
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, map[string]any{"emails": emails})
		},
	}
}

func intakeCmd(client *backend.Client, cfg *config.Config, dedup intake.Deduper) *cli.Command {
	return &cli.Command{
		Name:  "intake",
		Usage: "Run one intake pass and report new and already-seen tickets",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ingest", Usage: "Trigger mailbox ingestion first"},
			&cli.BoolFlag{Name: "categorize", Usage: "Trigger categorization first"},
		},
		Action: func(c *cli.Context) error {
			ctrl := lifecycle.New(lifecycle.Config{Backend: client, Agents: cfg.Agents})
			defer ctrl.Close()

			runner := intake.NewRunner(intake.RunnerConfig{Backend: client, Loader: ctrl, Dedup: dedup})
			res, err := runner.Run(c.Context, intake.Request{
				Ingest:     c.Bool("ingest"),
				Categorize: c.Bool("categorize"),
			})
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, map[string]any{
				"listed":  res.Listed,
				"new":     res.New,
				"seen":    res.Seen,
				"created": res.Created,
				"errors":  res.Errors,
				"elapsed": res.Elapsed.String(),
			})
		},
	}
}

func boardCmd(client *backend.Client, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "board",
		Usage: "Show the triage board, or one agent's board by ticket status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Aliases: []string{"a"}, Usage: "Agent ID"},
		},
		Action: func(c *cli.Context) error {
			ctrl := lifecycle.New(lifecycle.Config{Backend: client, Agents: cfg.Agents})
			defer ctrl.Close()

			runner := intake.NewRunner(intake.RunnerConfig{Backend: client, Loader: ctrl})
			if _, err := runner.Run(c.Context, intake.Request{}); err != nil {
				return err
			}

			agent := c.String("agent")
			if agent == "" {
				return outputJSON(c.App.Writer, ctrl.Triage())
			}
			if _, ok := cfg.Agents.Get(agent); !ok {
				return fmt.Errorf("unknown agent %q", agent)
			}
			return outputJSON(c.App.Writer, ctrl.Board(agent))
		},
	}
}

func ticketCmd(client *backend.Client) *cli.Command {
	return &cli.Command{
		Name:  "ticket",
		Usage: "Inspect or change a ticket",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Fetch the document and print the synthesized ticket",
				ArgsUsage: "<email-id>",
				Action: func(c *cli.Context) error {
					t, err := fetchTicket(c, client)
					if err != nil {
						return err
					}
					return outputJSON(c.App.Writer, ticketOutput(t))
				},
			},
			{
				Name:      "set",
				Usage:     "Set the ticket status on the backend",
				ArgsUsage: "<email-id> <new|open|closed>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("expected <email-id> <status>")
					}
					status := models.TicketStatus(c.Args().Get(1))
					if !status.Valid() {
						return fmt.Errorf("invalid ticket status %q", status)
					}
					doc, err := client.UpdateTicket(c.Context, c.Args().First(), status)
					if err != nil {
						return err
					}
					return outputJSON(c.App.Writer, map[string]any{
						"id":            doc.Email.ID,
						"ticket_status": doc.Email.BoardStatus(),
					})
				},
			},
			{
				Name:      "ocr",
				Usage:     "Run OCR on the email's attachments",
				ArgsUsage: "<email-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected <email-id>")
					}
					res, err := client.RunOCR(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					return outputJSON(c.App.Writer, res)
				},
			},
			{
				Name:      "draft",
				Usage:     "Generate a draft reply",
				ArgsUsage: "<email-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected <email-id>")
					}
					res, err := client.GenerateDraft(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					return outputJSON(c.App.Writer, res)
				},
			},
		},
	}
}

func previewCmd(client *backend.Client) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Render the draft reply as it would be sent",
		ArgsUsage: "<email-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Print only the HTML body"},
		},
		Action: func(c *cli.Context) error {
			t, err := fetchTicket(c, client)
			if err != nil {
				return err
			}
			p := render.Ticket(t)
			if c.Bool("html") {
				_, err := io.WriteString(c.App.Writer, p.HTML)
				return err
			}
			return outputJSON(c.App.Writer, p)
		},
	}
}

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "Parse seed emails (JSON or .eml) and print them normalized",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected <path>")
			}
			emails, err := seed.Load(c.Args().First())
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, map[string]any{"emails": emails})
		},
	}
}

// fetchTicket synthesizes a ticket from the email's full document.
func fetchTicket(c *cli.Context, client *backend.Client) (models.Ticket, error) {
	if c.NArg() != 1 {
		return models.Ticket{}, fmt.Errorf("expected <email-id>")
	}
	doc, err := client.Fetch(c.Context, c.Args().First())
	if err != nil {
		return models.Ticket{}, err
	}
	if doc.Email.ID == "" {
		doc.Email.ID = c.Args().First()
	}

	t, _ := synth.New().Synthesize(doc.Email)
	synth.Apply(t, doc)
	return t.Clone(), nil
}

func ticketOutput(t models.Ticket) map[string]any {
	return map[string]any{
		"ticket": t,
		"display": map[string]string{
			"confidence":  synth.FormatScore(t.Scores.Confidence),
			"duplication": synth.FormatScore(t.Scores.Duplication),
			"fraud":       synth.FormatScore(t.Scores.Fraud),
		},
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
