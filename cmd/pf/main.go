package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pressflow/internal/app"
	"pressflow/internal/config"
	"pressflow/internal/db"
	"pressflow/internal/domain"
	"pressflow/internal/engine"
	"pressflow/internal/migrate"
	"pressflow/internal/repo"
	"pressflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pf",
	Short: "Pressflow CLI",
	Long: `Pressflow decides when content is ready to go live and carries it through publish.
Core concepts:
- Workspace: your .pressflow directory holding the database; pressflow.yml beside it holds the rules.
- Items: posts, pages, and any other configured content type; statuses go draft/pending/private -> publish or future.
- Requirements: per-type rules saying which fields, metadata, groups, and taxonomies must be filled before publishing.
- Readiness: items are evaluated against requirements; the review UI shows what is still missing.
- Publishing: ready items publish immediately, future-dated items get scheduled, backdated items publish with their dates kept.
- Roles: editors publish anything, authors publish their own items.
- Event log: diary of item changes, view with 'pf log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(metaCmd())
	rootCmd.AddCommand(termCmd())
	rootCmd.AddCommand(flowCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(serveCmd())
}

func itemCmd() *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Manage content items",
		Long:  "Items are the content being prepared for publication. They start as drafts, collect metadata and terms, and leave through 'pf publish' once ready.",
	}
	item.AddCommand(itemCreateCmd())
	item.AddCommand(itemListCmd())
	item.AddCommand(itemGetCmd())
	item.AddCommand(itemUpdateCmd())
	item.AddCommand(itemDeleteCmd())
	return item
}

func itemCreateCmd() *cobra.Command {
	var itemType, title, content, excerpt, slug, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a content item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.CreateItem(ctx, domain.ContentItem{
					Type:     itemType,
					Title:    title,
					Content:  content,
					Excerpt:  excerpt,
					Slug:     slug,
					Status:   status,
					AuthorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "post", "content type")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&content, "content", "", "body content")
	cmd.Flags().StringVar(&excerpt, "excerpt", "", "excerpt")
	cmd.Flags().StringVar(&slug, "slug", "", "slug (derived from title if omitted)")
	cmd.Flags().StringVar(&status, "status", "", "initial status (draft, pending, private)")
	return cmd
}

func itemListCmd() *cobra.Command {
	var f repo.ItemFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List content items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListItems(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Status", "Author", "Date (UTC)"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Type, it.Title, it.Status, it.AuthorID, it.DateUTC})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().StringVar(&f.Cursor, "cursor", "", "pagination cursor (list ids below this)")
	return cmd
}

func itemGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				it, err := r.GetItem(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	return cmd
}

func itemUpdateCmd() *cobra.Command {
	var title, content, excerpt, slug, status, dateLocal, dateUTC string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update content item fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			patch := repo.ItemPatch{}
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("content") {
				patch.Content = &content
			}
			if cmd.Flags().Changed("excerpt") {
				patch.Excerpt = &excerpt
			}
			if cmd.Flags().Changed("slug") {
				patch.Slug = &slug
			}
			if cmd.Flags().Changed("status") {
				patch.Status = &status
			}
			if cmd.Flags().Changed("date-local") {
				patch.DateLocal = &dateLocal
			}
			if cmd.Flags().Changed("date-utc") {
				patch.DateUTC = &dateUTC
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.UpdateItem(ctx, id, patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&content, "content", "", "body content")
	cmd.Flags().StringVar(&excerpt, "excerpt", "", "excerpt")
	cmd.Flags().StringVar(&slug, "slug", "", "slug")
	cmd.Flags().StringVar(&status, "status", "", "status (draft, pending, private)")
	cmd.Flags().StringVar(&dateLocal, "date-local", "", "site-local date (2006-01-02 15:04:05)")
	cmd.Flags().StringVar(&dateUTC, "date-utc", "", "UTC date (2006-01-02 15:04:05)")
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteItem(ctx, id)
			})
		},
	}
	return cmd
}

func metaCmd() *cobra.Command {
	meta := &cobra.Command{
		Use:   "meta",
		Short: "Manage item metadata",
		Long:  "Metadata keys hold ordered value lists per item. Readiness only looks at the first value of each key.",
	}
	meta.AddCommand(metaSetCmd())
	meta.AddCommand(metaListCmd())
	meta.AddCommand(metaDeleteCmd())
	return meta
}

func metaSetCmd() *cobra.Command {
	var values []string
	cmd := &cobra.Command{
		Use:   "set <item-id> <key>",
		Short: "Replace the value list for one key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.ReplaceMeta(ctx, id, args[1], values)
			})
		},
	}
	cmd.Flags().StringArrayVar(&values, "value", []string{}, "value (repeatable, order preserved)")
	return cmd
}

func metaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <item-id>",
		Short: "List item metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.GetMeta(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	return cmd
}

func metaDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <item-id> <key>",
		Short: "Delete one metadata key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteMeta(ctx, id, args[1])
			})
		},
	}
	return cmd
}

func termCmd() *cobra.Command {
	term := &cobra.Command{
		Use:   "term",
		Short: "Manage item taxonomy terms",
	}
	term.AddCommand(termSetCmd())
	term.AddCommand(termListCmd())
	return term
}

func termSetCmd() *cobra.Command {
	var terms []string
	cmd := &cobra.Command{
		Use:   "set <item-id> <taxonomy>",
		Short: "Replace the term set for one taxonomy",
		Long:  "Terms are given as id:name pairs, e.g. --term 7:News.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: pf term set <item-id> <taxonomy>")
			}
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			parsed := make([]domain.Term, 0, len(terms))
			for _, t := range terms {
				termID, name, ok := strings.Cut(t, ":")
				if !ok {
					return fmt.Errorf("term %q must be id:name", t)
				}
				tid, err := strconv.ParseInt(termID, 10, 64)
				if err != nil {
					return fmt.Errorf("term id %q: %w", termID, err)
				}
				parsed = append(parsed, domain.Term{ID: tid, Taxonomy: args[1], Name: name})
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.ReplaceTerms(ctx, id, args[1], parsed)
			})
		},
	}
	cmd.Flags().StringArrayVar(&terms, "term", []string{}, "term as id:name (repeatable)")
	return cmd
}

func termListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <item-id>",
		Short: "List item terms by taxonomy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				terms, err := r.GetTerms(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(terms)
			})
		},
	}
	return cmd
}

func flowCmd() *cobra.Command {
	flow := &cobra.Command{
		Use:   "flow",
		Short: "Publish flow data",
		Long:  "The flow aggregate is what the review UI renders: requirement snapshots, readiness, scheduling flags, links, and a publish nonce.",
	}
	flow.AddCommand(flowShowCmd())
	flow.AddCommand(flowURLCmd())
	flow.AddCommand(flowReadinessCmd())
	return flow
}

func flowShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show flow data for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.BuildFlowData(ctx, id, viper.GetString("actor-id"), "")
				if err != nil {
					return err
				}
				return printJSONOrTable(data)
			})
		},
	}
	return cmd
}

func flowURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url <item-id>",
		Short: "Print the review UI hand-off URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.Repo.GetItem(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"url": e.FlowURL(it)})
				}
				fmt.Println(e.FlowURL(it))
				return nil
			})
		},
	}
	return cmd
}

func flowReadinessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readiness <item-id>",
		Short: "Evaluate item readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.Repo.GetItem(ctx, id)
				if err != nil {
					return err
				}
				snap, err := e.LoadSnapshot(ctx, it)
				if err != nil {
					return err
				}
				ready := engine.EvaluateReadiness(snap)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"item_id": id, "ready": ready, "snapshot": snap})
				}
				if ready {
					fmt.Println("ready")
				} else {
					fmt.Println("not ready")
				}
				return nil
			})
		},
	}
	return cmd
}

func publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <item-id>",
		Short: "Publish or schedule an item",
		Long:  "Unset dates publish now, future dates schedule, past dates publish with the dates kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Publish(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s\n", res.Outcome, res.Link)
				return nil
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	var itemType string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountItemsByStatus(ctx, itemType)
				if err != nil {
					return err
				}
				out := map[string]any{
					"site_id":     e.Config.Site.ID,
					"base_url":    e.Config.Site.BaseURL,
					"item_counts": counts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Site: %s (%s)\n", e.Config.Site.ID, e.Config.Site.BaseURL)
				fmt.Println("Items:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "", "count only this content type")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook (pressflow.yml): site identity, supported content types, and the per-type publication requirements.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var siteID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter pressflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(siteID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteID, "site-id", "local-site", "site identifier")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: item creation, transitions, and publishes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var after int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, after, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&after, "after", 0, "only events with id greater than this")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "Role management",
		Long:  "Roles gate publishing: editors hold item.publish, authors hold item.publish_own.",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				profile, err := r.ActorProfile(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(profile)
			})
		},
	}
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.EnsureActor(ctx, target, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				return r.AssignRole(ctx, target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id (editor, author)")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RevokeRole(ctx, target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys",
		Long:  "API keys authenticate HTTP clients via the X-Api-Key header. The raw key is printed once at creation; only its hash is stored.",
	}
	key.AddCommand(keyCreateCmd())
	key.AddCommand(keyListCmd())
	key.AddCommand(keyDeleteCmd())
	return key
}

func keyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actorID := viper.GetString("actor-id")
				if err := r.EnsureActor(ctx, actorID, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				raw := uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": raw})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, raw)
				fmt.Println("store the key now; it will not be shown again")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func keyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if s := os.Getenv("PF_JWT_SECRET"); s != "" {
				authCfg.JWTSecret = s
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("PF_JWT_SECRET (or auth.jwt_secret in pressflow.yml) is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pressflow API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "trust the X-Actor-Id header (local dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parseItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
