package persistence

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/astralforge/starhold/internal/simerr"
)

// snapshotSchema checks the structural shape of a decoded save before the
// engine attempts a restore. It covers the envelope and the types of each
// top-level section; per-field semantic checks stay in the engine.
const snapshotSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["save_version", "seed", "tick", "now_s", "inventory",
		"rng_state", "markets", "crafting", "automation"],
	"properties": {
		"save_version": {"type": "integer", "minimum": 1},
		"seed": {"type": "integer"},
		"tick": {"type": "integer", "minimum": 0},
		"now_s": {"type": "number", "minimum": 0},
		"home_market": {"type": "string"},
		"inventory": {
			"type": "object",
			"additionalProperties": {"type": "integer", "minimum": 0}
		},
		"rng_state": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "seed", "draws"],
				"properties": {
					"name": {"type": "string"},
					"seed": {"type": "integer"},
					"draws": {"type": "integer", "minimum": 0}
				}
			}
		},
		"markets": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["id", "supply_demand"],
				"properties": {
					"id": {"type": "string", "pattern": "^[^/]+/.+$"}
				}
			}
		},
		"trade_routes": {"type": ["array", "null"]},
		"active_events": {"type": ["array", "null"]},
		"active_ripples": {"type": ["array", "null"]},
		"crafting": {
			"type": "object",
			"required": ["job_seq", "statistics"]
		},
		"automation": {
			"type": "object",
			"required": ["node_seq", "conn_seq"]
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("snapshot.json", snapshotSchema)

// ValidateSnapshot checks raw snapshot JSON against the save schema.
func ValidateSnapshot(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return simerr.Corruptedf("snapshot is not valid JSON: %v", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return simerr.Corruptedf("snapshot schema: %v", err)
	}
	return nil
}
