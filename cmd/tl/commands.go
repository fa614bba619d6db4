package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"turnline/internal/app"
	"turnline/internal/config"
	"turnline/internal/domain"
	"turnline/internal/engine"
	"turnline/internal/ledger"
	"turnline/internal/repo"
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

// --- campaign ---

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Inspect campaigns"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Date", "Rating"})
				for _, camp := range items {
					tw.AppendRow(table.Row{camp.ID, camp.Name, camp.Date.Format("2006-01-02"), camp.UnitRating})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				camp, err := e.Repo.GetCampaign(ctx, campaignID)
				if err != nil {
					return err
				}
				contracts, err := e.Repo.ListContracts(ctx, campaignID)
				if err != nil {
					return err
				}
				balance, err := e.Repo.Balance(ctx, campaignID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"campaign":  camp,
					"contracts": contracts,
					"balance":   balance,
				})
			})
		},
	})
	return c
}

// --- roster ---

func rosterCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "roster",
		Short: "Import and inspect the campaign roster",
	}
	c.AddCommand(rosterImportCmd())
	c.AddCommand(rosterListCmd())
	c.AddCommand(rosterRemoveCmd())
	return c
}

func rosterImportCmd() *cobra.Command {
	var file string
	var prune bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update a campaign from a roster YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			roster, err := engine.ParseRoster(data)
			if err != nil {
				return err
			}
			if roster.Config == nil {
				// Pick up the workspace turnline.yml when it belongs to this campaign.
				cfg, err := config.LoadOptional(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				if cfg != nil && cfg.Campaign.ID == roster.Campaign.ID {
					roster.Config = cfg
				}
			}
			return withConnEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ImportRoster(ctx, roster, engine.ImportOptions{Prune: prune, ActorID: actorID()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported campaign %s: %d persons, %d contracts\n", res.CampaignID, res.Persons, res.Contracts)
				if len(res.Pruned) > 0 {
					fmt.Printf("Pruned %s\n", strings.Join(res.Pruned, ", "))
				}
				if n := res.Reconciled.Removed(); n > 0 {
					fmt.Printf("Dropped %d ledger entries of persons no longer on the roster\n", n)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "roster YAML file")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete persons missing from the file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func rosterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				persons, err := e.Repo.ListPersons(ctx, campaignID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(persons)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Experience", "Status", "Salary"})
				for _, p := range persons {
					tw.AppendRow(table.Row{p.ID, p.Name, p.PrimaryRole, p.Experience, p.Status, p.MonthlySalary.Format(language.AmericanEnglish)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func rosterRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <person-id>",
		Short: "Delete a person and their ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				if err := e.RemovePerson(ctx, campaignID, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", args[0])
				return nil
			})
		},
	}
}

// withConnEngine is withEngine without resolving a campaign.
func withConnEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		return fn(ctx, newEngine(r.DB, r.Dialect))
	})
}

// --- config ---

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect and import the turnover config",
		Long:  "Config is the rulebook (stored in DB): which target modifiers apply, their values and the payout table. Import from turnline.yml.",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				_, cfg, err := app.ResolveCampaignAndConfig(ctx, viper.GetString("campaign"), r)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				out, err := cfg.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				cfg, err := e.Config(ctx, campaignID)
				if err != nil {
					return err
				}
				return cfg.Validate()
			})
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	c.AddCommand(configImportCmd())
	c.AddCommand(&cobra.Command{
		Use:   "init <campaign-id>",
		Short: "Print the default config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault(args[0]))
			return nil
		},
	})
	return c
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a config file into the campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if file == "" {
				cfg, err = config.Load(viper.GetString("workspace"))
			} else {
				cfg, err = config.FromFile(file)
			}
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				if cfg.Campaign.ID != campaignID {
					return fmt.Errorf("config is for campaign %s, not %s", cfg.Campaign.ID, campaignID)
				}
				if err := e.SetConfig(ctx, campaignID, cfg, actorID()); err != nil {
					return err
				}
				fmt.Printf("Imported config for %s\n", campaignID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config YAML file (default turnline.yml in the workspace)")
	return cmd
}

// --- contract ---

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Manage contracts"}
	var status string
	complete := &cobra.Command{
		Use:   "complete <contract-id>",
		Short: "Record a contract outcome; marks a turnover roll as due",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				if err := e.CompleteContract(ctx, campaignID, args[0], domain.ContractStatus(status), actorID()); err != nil {
					return err
				}
				l, err := e.Ledger(ctx, campaignID)
				if err != nil {
					return err
				}
				if l.IsRollRequired(args[0]) {
					fmt.Printf("Contract %s %s; run 'tl turnover roll --contract %s'\n", args[0], status, args[0])
				} else {
					fmt.Printf("Contract %s %s\n", args[0], status)
				}
				return nil
			})
		},
	}
	complete.Flags().StringVar(&status, "status", "success", "outcome (success, partial, failed, breach)")
	c.AddCommand(complete)
	return c
}

// --- turnover ---

func turnoverCmd() *cobra.Command {
	c := &cobra.Command{Use: "turnover", Short: "Compute and roll turnover"}
	c.AddCommand(turnoverTargetsCmd())
	c.AddCommand(turnoverRollCmd())
	c.AddCommand(turnoverSeparateCmd())
	return c
}

func turnoverTargetsCmd() *cobra.Command {
	var contractID string
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Show target numbers with their modifier breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				res, err := e.Targets(ctx, campaignID, contractID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				ids := make([]string, 0, len(res.Targets))
				for id := range res.Targets {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				tw := newTable()
				tw.AppendHeader(table.Row{"Person", "Target", "Breakdown"})
				for _, id := range ids {
					t := res.Targets[id]
					tw.AppendRow(table.Row{id, t.Value(), t.Description()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contractID, "contract", "", "concluded contract")
	return cmd
}

func turnoverRollCmd() *cobra.Command {
	var contractID string
	cmd := &cobra.Command{
		Use:   "roll",
		Short: "Roll turnover and record departures in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				res, err := e.Roll(ctx, engine.RollOptions{CampaignID: campaignID, ContractID: contractID, ActorID: actorID()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Person", "Target", "Roll", "Result"})
				for _, r := range res.Rolls {
					result := "stays"
					if r.Departs {
						result = "departs"
					}
					tw.AppendRow(table.Row{r.PersonID, r.Target, r.Roll, result})
				}
				tw.Render()
				fmt.Printf("%d departing\n", len(res.Departing))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contractID, "contract", "", "concluded contract that triggered the roll")
	return cmd
}

func turnoverSeparateCmd() *cobra.Command {
	var status, contractID string
	cmd := &cobra.Command{
		Use:   "separate <person-id>",
		Short: "Record a killed or dismissed person and price their payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				p, err := e.RecordSeparation(ctx, engine.SeparationOptions{
					CampaignID: campaignID,
					PersonID:   args[0],
					Status:     domain.PersonStatus(status),
					ContractID: contractID,
					ActorID:    actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "killed", "killed or dismissed")
	cmd.Flags().StringVar(&contractID, "contract", "", "contract the separation belongs to")
	return cmd
}

// --- ledger ---

func ledgerCmd() *cobra.Command {
	c := &cobra.Command{Use: "ledger", Short: "Inspect and resolve unresolved payouts"}
	c.AddCommand(ledgerShowCmd())
	c.AddCommand(ledgerResolveCmd())
	c.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Drop entries of persons no longer on the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				report, err := e.Reconcile(ctx, campaignID, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Dropped %d entries\n", report.Removed())
				return nil
			})
		},
	})
	c.AddCommand(ledgerExportCmd())
	c.AddCommand(ledgerImportCmd())
	c.AddCommand(&cobra.Command{
		Use:   "assign-unit <person-id> <unit-id>",
		Short: "Record the unit a departing pilot takes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				return e.AssignStolenUnit(ctx, campaignID, args[0], args[1], actorID())
			})
		},
	})
	return c
}

func ledgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show pending payouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				l, err := e.Ledger(ctx, campaignID)
				if err != nil {
					return err
				}
				due, err := e.ReviewDue(ctx, campaignID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"review_due": due, "summary": l.Summary(), "ledger": l.Document()})
				}
				printLedger(l)
				if rolls := l.RollRequired(); len(rolls) > 0 {
					fmt.Printf("Rolls required: %s\n", strings.Join(rolls, ", "))
				}
				if due {
					fmt.Println("Periodic turnover review is due")
				}
				return nil
			})
		},
	}
}

func printLedger(l *ledger.Ledger) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Person", "Reason", "Contracts", "Cash", "Other"})
	for _, personID := range l.PayoutPersons() {
		p, _ := l.Payout(personID)
		var other []string
		if p.StolenUnit {
			unit := p.StolenUnitID
			if unit == "" {
				unit = "unassigned"
			}
			other = append(other, "stolen unit "+unit)
		}
		if p.WeightClassDelta != 0 {
			other = append(other, fmt.Sprintf("weight class %+d", p.WeightClassDelta))
		}
		if p.Dependents > 0 {
			other = append(other, fmt.Sprintf("%d dependents", p.Dependents))
		}
		if p.Recruit {
			other = append(other, "recruit "+string(p.RecruitRole))
		}
		if p.Heir {
			other = append(other, "heir")
		}
		tw.AppendRow(table.Row{personID, p.Reason, strings.Join(l.ContractsFor(personID), ","), p.Cash.Format(language.AmericanEnglish), strings.Join(other, "; ")})
	}
	s := l.Summary()
	tw.AppendFooter(table.Row{"", "", "Total", s.Cash.Format(language.AmericanEnglish), ""})
	tw.Render()
}

func ledgerResolveCmd() *cobra.Command {
	var contractID string
	var all bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Discard the payouts of a contract, or of the whole ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (contractID != "") {
				return fmt.Errorf("exactly one of --contract or --all is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				if all {
					n, err := e.ResolveAll(ctx, campaignID, actorID())
					if err != nil {
						return err
					}
					fmt.Printf("Discarded %d payouts\n", n)
					return nil
				}
				cleared, err := e.ResolveContract(ctx, campaignID, contractID, actorID())
				if err != nil {
					return err
				}
				fmt.Printf("Resolved %s; discarded %d payouts\n", contractID, len(cleared))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contractID, "contract", "", "contract to resolve")
	cmd.Flags().BoolVar(&all, "all", false, "resolve everything")
	return cmd
}

func ledgerExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ledger document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				doc, err := e.ExportLedger(ctx, campaignID)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(doc)
					return err
				}
				return os.WriteFile(out, doc, 0o644)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func ledgerImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the ledger with a document; legacy forms are accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				report, err := e.ImportLedger(ctx, campaignID, data, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Imported ledger; dropped %d entries of unknown persons\n", report.Removed())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "ledger YAML or JSON document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- payout ---

func payoutCmd() *cobra.Command {
	c := &cobra.Command{Use: "payout", Short: "Settle payouts"}
	var contractID string
	settle := &cobra.Command{
		Use:   "settle",
		Short: "Pay cash payouts as finance debits and clear them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				res, err := e.Settle(ctx, engine.SettleOptions{CampaignID: campaignID, ContractID: contractID, ActorID: actorID()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Person", "Reason", "Cash", "Transaction"})
				for _, s := range res.Settled {
					tw.AppendRow(table.Row{s.PersonID, s.Payout.Reason, s.Payout.Cash.Format(language.AmericanEnglish), s.TransactionID})
				}
				tw.AppendFooter(table.Row{"", "Total", res.Total.Format(language.AmericanEnglish), ""})
				tw.Render()
				return nil
			})
		},
	}
	settle.Flags().StringVar(&contractID, "contract", "", "settle one contract (default all)")
	c.AddCommand(settle)
	return c
}

// --- log ---

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, campaignID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, campaignID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + " " + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	c.AddCommand(tail)
	return c
}
