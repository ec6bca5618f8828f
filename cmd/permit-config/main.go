package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permit-config - Configuration tool for permit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permit-config convert <input> <output>  - Convert between formats")
	fmt.Println("  permit-config validate <file>           - Validate configuration")
	fmt.Println("  permit-config stats <file>              - Show configuration statistics")
	fmt.Println("  permit-config apply <file> [sqlite-db]  - Apply configuration to stores")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Roles: %d\n", len(cfg.Roles))
	fmt.Printf("  Groups: %d\n", len(cfg.Groups))
	fmt.Printf("  Assignments: %d\n", len(cfg.Assignments))
	fmt.Printf("  Templates: %d\n", len(cfg.Templates))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Groups:      %d\n", len(cfg.Groups))
	fmt.Printf("  Assignments: %d\n", len(cfg.Assignments))
	fmt.Printf("  Templates:   %d\n", len(cfg.Templates))
	fmt.Println()

	allowCount := 0
	denyCount := 0
	conditional := 0
	countGrants := func(grants []permit.Grant) {
		for _, g := range grants {
			if g.Denies() {
				denyCount++
			} else {
				allowCount++
			}
			if len(g.Conditions) > 0 {
				conditional++
			}
		}
	}
	for _, r := range cfg.Roles {
		countGrants(r.Permissions)
	}
	for _, g := range cfg.Groups {
		countGrants(g.Permissions)
	}
	for _, a := range cfg.Assignments {
		countGrants(a.DirectGrants)
	}
	fmt.Println("Grant Details:")
	fmt.Printf("  Allow grants:       %d\n", allowCount)
	fmt.Printf("  Deny grants:        %d\n", denyCount)
	fmt.Printf("  Conditional grants: %d\n", conditional)
	fmt.Println()

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Strict mode:       %v\n", cfg.Engine.StrictMode)
	fmt.Printf("  Wildcards:         %v\n", !cfg.Engine.DisableWildcard)
	fmt.Printf("  Cache TTL:         %dms\n", cfg.Engine.CacheTTL)
	fmt.Printf("  Audit buffer size: %d\n", cfg.Engine.AuditBufferSize)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config apply <file> [sqlite-db]")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Roles loaded: %d\n", len(cfg.Roles))
	fmt.Printf("  Groups loaded: %d\n", len(cfg.Groups))
	fmt.Printf("  Assignments loaded: %d\n", len(cfg.Assignments))
}

// buildEngine wires sqlite-backed stores when a database path is given,
// in-memory stores otherwise.
func buildEngine(cfg *permit.Config) (*permit.Engine, error) {
	opts := cfg.Engine.Options()
	if len(os.Args) > 3 {
		sqlDB, err := sql.Open("sqlite", os.Args[3])
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db := squealx.NewDb(sqlDB, "sqlite", "permit")
		if err := stores.Migrate(db); err != nil {
			return nil, err
		}
		opts = append(opts, permit.WithTemplateStore(stores.NewSQLTemplateStore(db)))
		return permit.NewEngine(
			stores.NewSQLUserStore(db),
			stores.NewSQLRoleStore(db),
			stores.NewSQLGroupStore(db),
			stores.NewSQLAssignmentStore(db),
			opts...,
		), nil
	}
	opts = append(opts, permit.WithTemplateStore(permit.NewMemoryTemplateStore()))
	return permit.NewEngine(
		permit.NewMemoryUserStore(),
		permit.NewMemoryRoleStore(),
		permit.NewMemoryGroupStore(),
		permit.NewMemoryAssignmentStore(),
		opts...,
	), nil
}

func loadConfig(filename string) (*permit.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	loader := permit.NewConfigLoader()

	switch ext {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	case ".bin":
		return loader.LoadBinary(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *permit.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = permit.EncodeBinaryConfig(cfg)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
