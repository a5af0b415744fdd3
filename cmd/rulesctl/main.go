// Command rulesctl is an operator tool that loads a YAML ruleset file,
// validates it against the Rule Engine's expectations, and publishes it as a
// new RuleVersion - atomically deactivating whatever version was previously
// active for that ruleset.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"docarchive/internal/catalog"
	"docarchive/internal/config"
	"docarchive/internal/persistence/databases"
	"docarchive/internal/rules"
)

func main() {
	log.SetFlags(0)
	var (
		rulesetName = flag.String("ruleset", "", "ruleset name (defaults to RULE_ENGINE_RULESET_NAME / \"default\")")
		file        = flag.String("file", "", "path to a YAML rules file")
		dryRun      = flag.Bool("dry-run", false, "validate and print the resulting JSON without publishing")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	name := *rulesetName
	if name == "" {
		name = cfg.RuleEngine.RulesetName
	}
	if name == "" {
		log.Fatal("no ruleset name given; pass -ruleset or set RULE_ENGINE_RULESET_NAME")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		log.Fatalf("parse YAML: %v", err)
	}
	rulesJSON, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		log.Fatalf("convert YAML to JSON: %v", err)
	}

	if err := rules.Validate(rulesJSON); err != nil {
		log.Fatalf("rules are invalid: %v", err)
	}

	sum := sha256.Sum256(rulesJSON)
	checksum := hex.EncodeToString(sum[:])

	if *dryRun {
		fmt.Printf("ruleset=%s checksum=%s\n%s\n", name, checksum, rulesJSON)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := databases.OpenPool(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("open catalog pool: %v", err)
	}
	defer pool.Close()

	ruleVersions := catalog.NewRuleVersionRepo(pool)

	rulesetID, err := ruleVersions.EnsureRuleset(ctx, name)
	if err != nil {
		log.Fatalf("ensure ruleset %q: %v", name, err)
	}

	rv, err := ruleVersions.PublishVersion(ctx, rulesetID, rulesJSON, checksum)
	if err != nil {
		log.Fatalf("publish rule version: %v", err)
	}

	fmt.Printf("published %s version %d (checksum %s)\n", name, rv.VersionNo, rv.ChecksumSHA256)
}

// normalizeYAML walks a yaml.v3-decoded tree so json.Marshal never rejects
// it; yaml.v3 already uses map[string]any for mapping nodes, but leaving
// this explicit keeps the conversion honest if that ever changes upstream.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeYAML(v)
		}
		return out
	default:
		return val
	}
}
