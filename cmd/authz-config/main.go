package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entgrid/authz"
	"github.com/entgrid/authz/stores"
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
	fmt.Println("authz-config - Configuration tool for authz")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  authz-config convert <input> <output>  - Convert between formats")
	fmt.Println("  authz-config validate <file>           - Validate configuration")
	fmt.Println("  authz-config stats <file>              - Show configuration statistics")
	fmt.Println("  authz-config apply <file>              - Apply configuration to in-memory stores")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: authz-config convert <input> <output>")
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
		fmt.Println("Usage: authz-config validate <file>")
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
	fmt.Printf("  Assignments: %d\n", len(cfg.Assignments))
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
	fmt.Printf("  Relationships: %d\n", len(cfg.Relationships))
	fmt.Printf("  Resources: %d\n", len(cfg.Resources))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authz-config stats <file>")
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
	fmt.Printf("  Roles:         %d\n", len(cfg.Roles))
	fmt.Printf("  Assignments:   %d\n", len(cfg.Assignments))
	fmt.Printf("  Policies:      %d\n", len(cfg.Policies))
	fmt.Printf("  Relationships: %d\n", len(cfg.Relationships))
	fmt.Printf("  Resources:     %d\n", len(cfg.Resources))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		allowCount := 0
		denyCount := 0
		conditionCount := 0
		for _, p := range cfg.Policies {
			if p.Effect == authz.EffectAllow {
				allowCount++
			} else {
				denyCount++
			}
			conditionCount += len(p.Conditions)
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Allow policies: %d\n", allowCount)
		fmt.Printf("  Deny policies:  %d\n", denyCount)
		fmt.Printf("  Conditions:     %d\n", conditionCount)
		fmt.Println()
	}

	if len(cfg.Roles) > 0 {
		totalPerms := 0
		inherited := 0
		for _, r := range cfg.Roles {
			totalPerms += len(r.Permissions)
			if r.ParentID != "" {
				inherited++
			}
		}
		fmt.Println("Role Details:")
		fmt.Printf("  Total permissions: %d\n", totalPerms)
		fmt.Printf("  Avg per role:      %.1f\n", float64(totalPerms)/float64(len(cfg.Roles)))
		fmt.Printf("  With parent:       %d\n", inherited)
		fmt.Println()
	}

	if len(cfg.Relationships) > 0 {
		byType := make(map[authz.RelationType]int)
		for _, rel := range cfg.Relationships {
			byType[rel.Type]++
		}
		fmt.Println("Relationship Details:")
		for relType, count := range byType {
			fmt.Printf("  %-12s %d\n", relType, count)
		}
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Decision cache TTL:     %dms\n", cfg.Engine.DecisionCacheTTL)
	fmt.Printf("  Max relationship depth: %d\n", cfg.Engine.MaxRelationshipDepth)
	fmt.Printf("  Audit buffer:           %d\n", cfg.Engine.AuditBuffer)
	fmt.Printf("  Business hours:         %02d:00-%02d:00\n",
		cfg.Conditions.BusinessHoursStart, cfg.Conditions.BusinessHoursEnd)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authz-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	roles := stores.NewMemoryRoleStore()
	policies := stores.NewMemoryPolicyStore()
	rels := stores.NewMemoryRelationshipStore()

	ctx := context.Background()
	if err := cfg.Apply(ctx, roles, policies, rels); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Roles loaded: %d\n", len(cfg.Roles))
	fmt.Printf("  Policies loaded: %d\n", len(cfg.Policies))
	fmt.Printf("  Relationships loaded: %d\n", len(cfg.Relationships))
}

func loadConfig(filename string) (*authz.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	loader := authz.NewConfigLoader()

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

func saveConfig(cfg *authz.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = authz.EncodeBinaryConfig(cfg)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
