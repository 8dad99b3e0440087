package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"DigestPipeline/internal/app"
	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/usecase"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app.Application) *cli.App {
	cliApp := &cli.App{
		Name:    "digestpipeline",
		Usage:   "Personalized news digests: fetch, condense, render, deliver",
		Version: Version,
		Commands: []*cli.Command{
			runCmd(a),
			recipientCmd(a),
			topicCmd(a),
			historyCmd(a),
			channelsCmd(a),
		},
	}
	// Errors are returned to main instead of exiting inside the library.
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// runCmd produces and delivers digests.
func runCmd(a *app.Application) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Generate and deliver a digest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "recipient", Aliases: []string{"r"}, Usage: "Recipient ID"},
			&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Usage: "Delivery channel (mail|whatsapp|telegram)"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Content language code"},
			&cli.BoolFlag{Name: "placeholder", Aliases: []string{"p"}, Usage: "Use the built-in placeholder profile instead of storage"},
			&cli.BoolFlag{Name: "all", Usage: "Run for every stored recipient"},
		},
		Action: func(c *cli.Context) error {
			base := usecase.RunRequest{
				RecipientID:        c.String("recipient"),
				Channel:            c.String("channel"),
				Language:           c.String("language"),
				UsePlaceholderData: c.Bool("placeholder"),
			}

			if !c.Bool("all") {
				if base.RecipientID == "" && !base.UsePlaceholderData {
					return cli.Exit("--recipient is required unless --placeholder or --all is set", 1)
				}
				res := a.Pipeline().Run(c.Context, base)
				if err := outputJSON(c.App.Writer, res); err != nil {
					return err
				}
				if !res.Success {
					return cli.Exit(fmt.Sprintf("[%s] %s", res.Code, res.Message), 1)
				}
				return nil
			}

			store, err := a.Store()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ids, err := store.ListRecipientIDs(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			reqs := make([]usecase.RunRequest, 0, len(ids))
			for _, id := range ids {
				req := base
				req.RecipientID = id
				req.UsePlaceholderData = false
				reqs = append(reqs, req)
			}

			results := a.Pipeline().RunMany(c.Context, reqs)
			if err := outputJSON(c.App.Writer, results); err != nil {
				return err
			}
			failed := 0
			for _, res := range results {
				if !res.Success {
					failed++
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d runs failed", failed, len(results)), 1)
			}
			return nil
		},
	}
}

// recipientOutput is the JSON shape of a stored recipient.
type recipientOutput struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Addresses map[string]string `json:"addresses"`
	Topics    []string          `json:"topics,omitempty"`
}

func toRecipientOutput(r domain.Recipient, topics []domain.Topic) recipientOutput {
	out := recipientOutput{ID: r.ID, Name: r.Name, Addresses: map[string]string{}}
	for ch, addr := range r.Addresses {
		if addr != "" {
			out.Addresses[string(ch)] = addr
		}
	}
	for _, t := range topics {
		out.Topics = append(out.Topics, t.Name)
	}
	return out
}

// recipientCmd manages stored recipients.
func recipientCmd(a *app.Application) *cli.Command {
	return &cli.Command{
		Name:  "recipient",
		Usage: "Manage recipients",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create or update a recipient",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Recipient ID (generated when empty)"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Display name"},
					&cli.StringFlag{Name: "email", Usage: "Mail address"},
					&cli.StringFlag{Name: "phone", Usage: "WhatsApp phone number"},
					&cli.StringFlag{Name: "telegram", Usage: "Telegram handle or chat ID"},
				},
				Action: func(c *cli.Context) error {
					store, err := a.Store()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					rec, err := store.UpsertRecipient(c.Context, domain.Recipient{
						ID:   c.String("id"),
						Name: strings.TrimSpace(c.String("name")),
						Addresses: map[domain.ChannelName]string{
							domain.ChannelMail:     c.String("email"),
							domain.ChannelWhatsApp: c.String("phone"),
							domain.ChannelTelegram: c.String("telegram"),
						},
					})
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return outputJSON(c.App.Writer, toRecipientOutput(rec, nil))
				},
			},
			{
				Name:      "show",
				Usage:     "Show a recipient and its topics",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("recipient id is required", 1)
					}
					store, err := a.Store()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					id := c.Args().First()
					rec, err := store.GetRecipient(c.Context, id)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if rec == nil {
						return cli.Exit("recipient not found: "+id, 1)
					}
					topics, err := store.GetTopics(c.Context, id)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return outputJSON(c.App.Writer, toRecipientOutput(*rec, topics))
				},
			},
		},
	}
}

// topicCmd manages subscriptions.
func topicCmd(a *app.Application) *cli.Command {
	return &cli.Command{
		Name:  "topic",
		Usage: "Manage topic subscriptions",
		Subcommands: []*cli.Command{
			{
				Name:      "subscribe",
				Usage:     "Subscribe a recipient to a topic",
				ArgsUsage: "<topic>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipient", Aliases: []string{"r"}, Required: true, Usage: "Recipient ID"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Topic description"},
				},
				Action: func(c *cli.Context) error {
					name := strings.TrimSpace(c.Args().First())
					if name == "" {
						return cli.Exit("topic name is required", 1)
					}
					store, err := a.Store()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					topic, err := store.Subscribe(c.Context, c.String("recipient"), name, c.String("description"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return outputJSON(c.App.Writer, map[string]string{
						"id":          topic.ID,
						"name":        topic.Name,
						"description": topic.Description,
						"recipient":   c.String("recipient"),
					})
				},
			},
		},
	}
}

// historyCmd lists persisted deliveries.
func historyCmd(a *app.Application) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded deliveries, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "recipient", Aliases: []string{"r"}, Usage: "Filter by recipient ID"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum records"},
		},
		Action: func(c *cli.Context) error {
			store, err := a.Store()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			records, err := store.ListDeliveries(c.Context, c.String("recipient"), c.Int("limit"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return outputJSON(c.App.Writer, records)
		},
	}
}

func channelsCmd(a *app.Application) *cli.Command {
	return &cli.Command{
		Name:  "channels",
		Usage: "List supported delivery channels",
		Action: func(c *cli.Context) error {
			return outputJSON(c.App.Writer, a.Channels())
		},
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
