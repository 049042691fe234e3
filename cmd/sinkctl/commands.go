package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sinklabs/sink/pkg/changereplay"
	"github.com/sinklabs/sink/pkg/config"
	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/entitystore"
	"github.com/sinklabs/sink/pkg/log"
	"github.com/sinklabs/sink/pkg/query"
	"github.com/sinklabs/sink/pkg/upgrade"
)

// currentSchemaVersion is the version this build of sinkctl expects
// every resource's primary environment to be at.
const currentSchemaVersion = 1

func resolveType(raw string) (domain.Type, error) {
	typ := domain.Type(raw)
	for _, known := range domain.KnownTypes {
		if known == typ {
			return typ, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", raw)
}

// parseKV turns "property=value" arguments into a property map, coercing
// each value to the Kind the type's schema declares.
func parseKV(typ domain.Type, args []string) (map[string]any, error) {
	schema := domain.Schema[typ]
	out := map[string]any{}
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid key=value argument %q", arg)
		}
		key, raw := parts[0], parts[1]
		kind, known := schema[key]
		if !known {
			out[key] = raw
			continue
		}
		switch kind {
		case domain.KindBool:
			out[key] = raw == "true" || raw == "1"
		case domain.KindInt:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", key, err)
			}
			out[key] = n
		case domain.KindTime:
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", key, err)
			}
			out[key] = t
		case domain.KindStringSlice:
			out[key] = strings.Split(raw, ",")
		default:
			out[key] = raw
		}
	}
	return out, nil
}

func runWithRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	rt, closeFn, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(rt)
}

// configureCmd declares a resource instance's account/type in its
// config file and registers it, ahead of ever opening its store — the
// write-side counterpart of openRuntime's read-side resolution.
var configureCmd = &cobra.Command{
	Use:   "configure <resourceType> <accountId>",
	Short: "Declare the account and type a resource instance is configured for",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, _ := cmd.Flags().GetString("config-dir")
		resource, _ := cmd.Flags().GetString("resource")
		resourceType, accountID := args[0], args[1]

		if err := config.SaveResourceConfig(configDir, resource, &config.ResourceConfig{
			AccountID: accountID,
			Type:      resourceType,
		}); err != nil {
			return err
		}

		registry, err := config.LoadRegistry(configDir)
		if err != nil {
			return err
		}
		registry.Register(resource, resourceType)
		if err := config.SaveRegistry(configDir, registry); err != nil {
			return err
		}

		fmt.Printf("configured %s as %s account %s\n", resource, resourceType, accountID)
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <type> <kv>...",
	Short: "Create a new entity of the given type",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := resolveType(args[0])
		if err != nil {
			return err
		}
		props, err := parseKV(typ, args[1:])
		if err != nil {
			return err
		}
		return runWithRuntime(cmd, func(rt *runtime) error {
			e := domain.New(typ)
			for k, v := range props {
				e.Set(k, v)
			}
			id, revision, err := rt.entities.Add(string(typ), nil, e)
			if err != nil {
				return err
			}
			fmt.Printf("created %s %x (revision %d)\n", typ, id, revision)
			return nil
		})
	},
}

var modifyCmd = &cobra.Command{
	Use:   "modify <type> <id> <kv>...",
	Short: "Modify an existing entity",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := resolveType(args[0])
		if err != nil {
			return err
		}
		id := []byte(args[1])
		props, err := parseKV(typ, args[2:])
		if err != nil {
			return err
		}
		return runWithRuntime(cmd, func(rt *runtime) error {
			rec, ok, err := rt.entities.FindLatest(string(typ), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such %s: %s", typ, args[1])
			}
			e := domain.Load(typ, rec.Properties)
			for k, v := range props {
				e.Set(k, v)
			}
			revision, err := rt.entities.Modify(string(typ), id, e, nil, rec.Revision)
			if err != nil {
				return err
			}
			fmt.Printf("modified %s %s (revision %d)\n", typ, args[1], revision)
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <type> <id>",
	Short: "Remove an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := resolveType(args[0])
		if err != nil {
			return err
		}
		return runWithRuntime(cmd, func(rt *runtime) error {
			revision, err := rt.entities.Remove(string(typ), []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("removed %s %s (revision %d)\n", typ, args[1], revision)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List entities of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := resolveType(args[0])
		if err != nil {
			return err
		}
		filterArgs, _ := cmd.Flags().GetStringSlice("filter")
		fulltextQuery, _ := cmd.Flags().GetString("fulltext")
		sortProperty, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		show, _ := cmd.Flags().GetStringSlice("show")

		filters, err := parseFilters(typ, filterArgs)
		if err != nil {
			return err
		}
		if fulltextQuery != "" {
			filters["__fulltext"] = query.Filter{Comparator: query.Fulltext, Value: fulltextQuery}
		}

		return runWithRuntime(cmd, func(rt *runtime) error {
			q := query.Query{
				Type:                string(typ),
				Filters:             filters,
				SortProperty:        sortProperty,
				RequestedProperties: show,
				Limit:               limit,
			}
			events, handle, err := rt.runner.Execute(q)
			if err != nil {
				return err
			}
			defer handle.Cancel()
			for ev := range events {
				if ev.Kind == query.InitialResultSetComplete {
					continue
				}
				fmt.Printf("%s %x %v\n", ev.Kind, ev.Id, ev.Properties)
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringSlice("filter", nil, "property=value filter, repeatable")
	listCmd.Flags().String("fulltext", "", "full-text query")
	listCmd.Flags().String("sort", "", "sort by property")
	listCmd.Flags().Int("limit", 0, "limit result count (0 = unlimited)")
	listCmd.Flags().StringSlice("show", nil, "properties to include in output")
}

func parseFilters(typ domain.Type, raw []string) (map[string]query.Filter, error) {
	filters := map[string]query.Filter{}
	props, err := parseKV(typ, raw)
	if err != nil {
		return nil, err
	}
	for k, v := range props {
		filters[k] = query.Filter{Comparator: query.Equals, Value: v}
	}
	return filters, nil
}

var countCmd = &cobra.Command{
	Use:   "count <type>",
	Short: "Count entities of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := resolveType(args[0])
		if err != nil {
			return err
		}
		return runWithRuntime(cmd, func(rt *runtime) error {
			n := 0
			if err := rt.entities.ReadAllUids(string(typ), func(id []byte) (bool, error) {
				n++
				return true, nil
			}); err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <type> <id>",
	Short: "Show one entity's current properties",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := resolveType(args[0])
		if err != nil {
			return err
		}
		return runWithRuntime(cmd, func(rt *runtime) error {
			rec, ok, err := rt.entities.FindLatest(string(typ), []byte(args[1]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no such %s: %s", typ, args[1])
			}
			fmt.Printf("revision: %d\noperation: %s\n", rec.Revision, rec.Operation)
			for k, v := range rec.Properties {
				fmt.Printf("%s: %v\n", k, v)
			}
			return nil
		})
	},
}

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Report database statistics for the resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithRuntime(cmd, func(rt *runtime) error {
			stats, err := rt.entities.Env().Stat()
			if err != nil {
				return err
			}
			for _, s := range stats {
				fmt.Printf("%-40s %d entries\n", s.Name, s.Entries)
			}
			max, err := rt.entities.MaxRevision()
			if err != nil {
				return err
			}
			cleaned, err := rt.entities.CleanedUpRevision()
			if err != nil {
				return err
			}
			fmt.Printf("maxRevision: %d\ncleanedUpRevision: %d\n", max, cleaned)
			return nil
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect the named databases inside the resource's environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbFilter, _ := cmd.Flags().GetString("db")
		return runWithRuntime(cmd, func(rt *runtime) error {
			stats, err := rt.entities.Env().Stat()
			if err != nil {
				return err
			}
			for _, s := range stats {
				if dbFilter != "" && s.Name != dbFilter {
					continue
				}
				fmt.Printf("%s: %d entries\n", s.Name, s.Entries)
			}
			return nil
		})
	},
}

func init() {
	inspectCmd.Flags().String("db", "", "restrict to a single named database")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a change-replay cycle for the resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("pass in a password with --password")
		}
		return runWithRuntime(cmd, func(rt *runtime) error {
			rt.secrets.Put(rt.resource, []byte(password))

			cursorPath := changereplay.EnvPath(rt.dataDir, rt.resource)
			cur, err := changereplay.Open(cursorPath, rt.resource, rt.entities, func(_ context.Context, typ string, id []byte, revision uint64, rec entitystore.Record) error {
				fmt.Printf("replayed %s %x revision %d\n", typ, id, revision)
				return nil
			})
			if err != nil {
				return err
			}
			defer func() { _ = cur.Close() }()
			return cur.Trigger(context.Background())
		})
	},
}

func init() {
	syncCmd.Flags().String("password", "", "account password for this sync cycle")
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the local cache for the resource (destructive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		resource, _ := cmd.Flags().GetString("resource")
		dir := resourceStorageDir(dataDir, resource)
		fmt.Printf("removing local cache for %q ...\n", resource)
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		fmt.Println("done")
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop a resource entirely, including its change-replay and synchronization state",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		resource, _ := cmd.Flags().GetString("resource")
		for _, suffix := range []string{"", ".changereplay", ".synchronization"} {
			dir := resourceStorageDir(dataDir, resource+suffix)
			fmt.Println("removing:", dir)
			if err := os.RemoveAll(dir); err != nil {
				fmt.Fprintln(os.Stderr, "failed to remove:", dir, err)
			}
		}
		return nil
	},
}

func resourceStorageDir(dataDir, resource string) string {
	return filepath.Join(dataDir, "storage", resource)
}

var traceCmd = &cobra.Command{
	Use:   "trace <on|off> [areas...]",
	Short: "Toggle trace-level logging for one or more areas",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "on":
			log.TraceOn(args[1:]...)
		case "off":
			log.TraceOff(args[1:]...)
		default:
			return fmt.Errorf("expected 'on' or 'off', got %q", args[0])
		}
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Run any pending schema migration for the resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithRuntime(cmd, func(rt *runtime) error {
			g := upgrade.NewGate(rt.entities.Env(), currentSchemaVersion, nil)
			status, recorded, err := g.Check()
			if err != nil {
				return err
			}
			switch status {
			case upgrade.StatusCurrent:
				fmt.Printf("resource %q is at version %d, nothing to do\n", rt.resource, recorded)
				return nil
			case upgrade.StatusTooNew:
				return fmt.Errorf("resource %q is at version %d, newer than this build's %d", rt.resource, recorded, currentSchemaVersion)
			default:
				if err := g.Upgrade(); err != nil {
					return err
				}
				fmt.Printf("resource %q upgraded from version %d to %d\n", rt.resource, recorded, currentSchemaVersion)
				return nil
			}
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Report version, disk usage, and garbage collection status for the resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithRuntime(cmd, func(rt *runtime) error {
			fmt.Printf("sinkctl %s (%s)\n", Version, Commit)
			fmt.Printf("resource: %s\n", rt.resource)
			if rt.resourceType != "" {
				fmt.Printf("configured type: %s\n", rt.resourceType)
				fmt.Printf("configured account: %s\n", rt.accountID)
			}

			usage, err := rt.entities.Env().DiskUsage()
			if err != nil {
				return err
			}
			fmt.Printf("disk usage: %d bytes\n", usage)

			max, err := rt.entities.MaxRevision()
			if err != nil {
				return err
			}
			fmt.Printf("max revision: %d\n", max)

			watermark, err := rt.runner.LowWatermark()
			if err != nil {
				return err
			}
			fmt.Printf("gc low watermark: %d\n", watermark)
			return nil
		})
	},
}
