// CUE schema validation code
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed campaign.cue
var embeddedSchema []byte

// ValidateWithCue validates a campaign config against the #Campaign definition
// of a CUE schema file. An empty cueFile selects the embedded schema.
func ValidateWithCue(cfg *CampaignConfig, cueFile string) error {
	schemaBytes := embeddedSchema
	if cueFile != "" {
		b, err := os.ReadFile(cueFile)
		if err != nil {
			return fmt.Errorf("cannot read CUE schema: %w", err)
		}
		schemaBytes = b
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileBytes(schemaBytes, cue.Filename("campaign.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Campaign"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no #Campaign definition")
	}

	doc, err := json.Marshal(cueDocument(cfg))
	if err != nil {
		return err
	}
	configVal := ctx.CompileBytes(doc, cue.Filename("config.json"))

	// Merge values with schema
	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalid, err)
	}
	return nil
}

// cueDocument mirrors the YAML field names the schema is written against.
func cueDocument(cfg *CampaignConfig) map[string]any {
	nodes := cfg.Nodes
	if nodes == nil {
		nodes = []string{}
	}
	return map[string]any{
		"channels":    cfg.Channels,
		"powers":      cfg.Powers,
		"nodes":       nodes,
		"nb_packet":   cfg.NbPacket,
		"packet_size": cfg.PacketSize,
		"delay_ms":    cfg.DelayMs,
		"timeout_s":   cfg.TimeoutS,
	}
}
