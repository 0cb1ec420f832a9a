package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/unionhall/policy"
	"github.com/unionhall/policy/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("policy-config - Configuration tool for access policies")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  policy-config convert <input> <output>  - Convert between formats")
	fmt.Println("  policy-config validate <file>           - Validate configuration")
	fmt.Println("  policy-config stats <file>              - Show configuration statistics")
	fmt.Println("  policy-config apply <file>              - Dry-run registration against an engine")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: policy-config convert <input> <output>")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := saveConfig(cfg, os.Args[3]); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], os.Args[3])
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: policy-config validate <file>")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
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
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: policy-config stats <file>")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	rules := 0
	delegations := 0
	linkages := 0
	for _, pc := range cfg.Policies {
		rules += len(pc.Rules)
		for _, rc := range pc.Rules {
			d, l := countRefs(rc)
			delegations += d
			linkages += l
		}
	}

	fmt.Printf("Configuration statistics for %s\n", os.Args[2])
	fmt.Printf("  Policies:    %d\n", len(cfg.Policies))
	fmt.Printf("  Rules:       %d\n", rules)
	fmt.Printf("  Delegations: %d\n", delegations)
	fmt.Printf("  Linkages:    %d\n", linkages)
}

func countRefs(rc policy.RuleConfig) (delegations, linkages int) {
	if rc.Policy != "" {
		delegations++
	}
	if rc.Linkage != "" {
		linkages++
	}
	for _, sub := range rc.AnyOf {
		d, l := countRefs(sub)
		delegations += d
		linkages += l
	}
	for _, sub := range rc.AllOf {
		d, l := countRefs(sub)
		delegations += d
		linkages += l
	}
	return delegations, linkages
}

// handleApply registers the configured policies against a throwaway engine,
// which catches problems Validate cannot see (duplicate registrations,
// engine knob errors).
func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: policy-config apply <file>")
		os.Exit(1)
	}

	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := policy.NewEngine(stores.NewMemoryDirectory(), stores.NewMemoryPermissionStore(), stores.NewMemoryComponentChecker())
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	if err := engine.ApplyConfig(cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Applied %d policies\n", len(cfg.Policies))
}

func loadConfig(filename string) (*policy.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	loader := policy.NewConfigLoader()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", filepath.Ext(filename))
	}
}

func saveConfig(cfg *policy.Config, filename string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported format: %s", filepath.Ext(filename))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
