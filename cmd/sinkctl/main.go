// Command sinkctl is a thin CLI over the core's public API: create,
// modify, remove, list, count, show, stat, inspect, sync, clear, drop,
// trace, upgrade, and info, operating directly against a local data
// directory. It is an external collaborator, not part of the core
// itself, and implements none of the interactive shell/REPL spec.md
// leaves out of scope.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sinklabs/sink/pkg/config"
	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/entitystore"
	"github.com/sinklabs/sink/pkg/events"
	"github.com/sinklabs/sink/pkg/fulltext"
	"github.com/sinklabs/sink/pkg/log"
	"github.com/sinklabs/sink/pkg/pipeline"
	"github.com/sinklabs/sink/pkg/query"
	"github.com/sinklabs/sink/pkg/secret"
	"github.com/sinklabs/sink/pkg/typeindex"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sinkctl",
	Short:   "sinkctl operates a local sink data store",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sinkctl version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("data-dir", "./data", "Data directory (per §6 on-disk layout)")
	rootCmd.PersistentFlags().String("config-dir", "./config", "Resource configuration directory")
	rootCmd.PersistentFlags().String("resource", "local", "Resource instance identifier")
	rootCmd.PersistentFlags().String("log-level", os.Getenv("SINKDEBUGLEVEL"), "Log level override (Trace, Log, Warning, Error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(infoCmd)
}

func initLogging() {
	levelFlag, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.LevelFromDebugEnv(levelFlag),
		JSONOutput: logJSON,
	})
}

// runtime bundles the open handles one CLI invocation needs against a
// single resource's storage.
type runtime struct {
	dataDir      string
	resource     string
	resourceType string
	accountID    string
	entities     *entitystore.Store
	broker       *events.Broker
	fulltext     *fulltext.Index
	runner       *query.Runner
	secrets      *secret.Store
}

// resolveResourceConfig looks up resource's declared account/type in
// <configDir>/<resource>.yaml and registers it in <configDir>/resources.yaml
// if found. A resource with no config file is not an error: not every
// resource instance needs a declared account/type, per §10.3.
func resolveResourceConfig(configDir, resource string) (resourceType, accountID string, err error) {
	registry, err := config.LoadRegistry(configDir)
	if err != nil {
		return "", "", fmt.Errorf("load resource registry: %w", err)
	}

	rc, err := config.LoadResourceConfig(configDir, resource)
	if err != nil {
		return "", "", nil
	}

	registry.Register(resource, rc.Type)
	if err := config.SaveRegistry(configDir, registry); err != nil {
		return "", "", fmt.Errorf("save resource registry: %w", err)
	}
	return rc.Type, rc.AccountID, nil
}

func resourcePaths(dataDir, resource string) (primary, fulltextDB string) {
	primary = filepath.Join(dataDir, "storage", resource, "primary.db")
	fulltextDB = filepath.Join(dataDir, "storage", resource, "fulltext", "index.db")
	return
}

// openRuntime opens the primary environment and full-text index for
// resource, wires a type index and default indexer for every known
// entity type, and returns a runner ready to execute queries.
func openRuntime(cmd *cobra.Command) (*runtime, func() error, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	configDir, _ := cmd.Flags().GetString("config-dir")
	resource, _ := cmd.Flags().GetString("resource")

	resourceType, accountID, err := resolveResourceConfig(configDir, resource)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve resource config: %w", err)
	}
	if resourceType != "" {
		log.WithResource(resource).Debug().Str("type", resourceType).Str("accountId", accountID).Msg("resolved resource configuration")
	}

	primaryPath, fulltextPath := resourcePaths(dataDir, resource)
	entities, err := entitystore.Open(primaryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open entity store: %w", err)
	}

	ft, err := fulltext.Open(fulltextPath)
	if err != nil {
		_ = entities.Close()
		return nil, nil, fmt.Errorf("open fulltext index: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	entities.SetBroker(broker)
	runner := query.NewRunner(entities, broker, ft)

	for _, typ := range domain.KnownTypes {
		ti := typeindex.New(string(typ))
		for property := range domain.Schema[typ] {
			ti.AddProperty(property)
		}
		p := pipeline.New()
		p.Register(&pipeline.DefaultIndexer{TypeIndex: ti})
		p.Register(&pipeline.FulltextIndexer{Index: ft})
		entities.RegisterPipeline(string(typ), p)
		runner.RegisterTypeIndex(string(typ), ti)
	}

	rt := &runtime{
		dataDir:      dataDir,
		resource:     resource,
		resourceType: resourceType,
		accountID:    accountID,
		entities:     entities,
		broker:       broker,
		fulltext:     ft,
		runner:       runner,
		secrets:      secret.New(),
	}
	closeFn := func() error {
		broker.Stop()
		ferr := ft.Close()
		eerr := entities.Close()
		if eerr != nil {
			return eerr
		}
		return ferr
	}
	return rt, closeFn, nil
}
