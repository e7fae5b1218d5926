// Package workflows ships ready-made graph definitions built on the builtin
// tool registry. The data quality pipeline is the reference workflow: it
// profiles a record set, finds quality issues, derives fix rules, applies
// them, and loops until the data is acceptably clean.
package workflows

import (
	"context"
	"encoding/json"

	"github.com/rendis/stateflow/internal/tools"
	"github.com/rendis/stateflow/pkg/schema"
)

// DataQualityGraphName is the name the pipeline definition registers under.
const DataQualityGraphName = "data_quality_pipeline"

// dqLoopCondition keeps iterating while issues remain and the pass budget
// holds. The executor's own ceiling is the hard backstop; this is the
// workflow-level policy.
const dqLoopCondition = "int(state.anomaly_count) > 1 && int(state.iteration) < 5"

// RegisterDataQualityTools registers the pipeline's tools. All of them
// return partial-state maps, so pipeline nodes use result_key "-" to spread
// results directly into the run state.
func RegisterDataQualityTools(r *tools.Registry) error {
	specs := []struct {
		name, description string
		fn                func(ctx context.Context, args map[string]any) (any, error)
	}{
		{"dq.profile", "Profile the record set to gather quality statistics", profileRecords},
		{"dq.identify_anomalies", "Identify data quality anomalies from the profile", identifyAnomalies},
		{"dq.generate_rules", "Generate fix rules for the detected anomalies", generateRules},
		{"dq.apply_rules", "Apply fix rules to the record set", applyRules},
		{"dq.summarize", "Summarize the quality improvement results", summarizeResults},
	}
	for _, s := range specs {
		if err := r.Register(tools.NewTool(s.name, s.description, s.fn)); err != nil {
			return err
		}
	}
	return nil
}

// DataQualityDefinition returns the pipeline graph:
//
//	profile -> identify -> rules -> apply -+-> profile   (issues remain)
//	                                       `-> summarize (clean or budget spent)
func DataQualityDefinition() *schema.GraphDefinition {
	spread := func(id, tool, description string) schema.NodeDefinition {
		return schema.NodeDefinition{ID: id, Tool: tool, ResultKey: "-", Description: description}
	}
	return &schema.GraphDefinition{
		Name:       DataQualityGraphName,
		EntryPoint: "profile",
		Nodes: []schema.NodeDefinition{
			spread("profile", "dq.profile", "Profile the record set"),
			spread("identify_anomalies", "dq.identify_anomalies", "Find data quality issues"),
			spread("generate_rules", "dq.generate_rules", "Derive fix rules from the issues"),
			spread("apply_rules", "dq.apply_rules", "Apply the fix rules to the records"),
			spread("summarize", "dq.summarize", "Summarize the pipeline outcome"),
		},
		Edges: []schema.EdgeDefinition{
			{From: "profile", To: "identify_anomalies"},
			{From: "identify_anomalies", To: "generate_rules"},
			{From: "generate_rules", To: "apply_rules"},
			{From: "apply_rules", To: "profile", Condition: dqLoopCondition,
				Description: "Loop back while issues remain within the pass budget"},
			{From: "apply_rules", To: "summarize", Condition: "!(" + dqLoopCondition + ")",
				Description: "Finish when the data is clean or the budget is spent"},
		},
	}
}

// --- Tool implementations ---

func profileRecords(ctx context.Context, args map[string]any) (any, error) {
	state, _ := args["state"].(map[string]any)
	records := asRecords(state["records"])

	nullCount := 0
	fieldCount := 0
	for _, rec := range records {
		for _, v := range rec {
			fieldCount++
			if v == nil {
				nullCount++
			}
		}
	}

	return map[string]any{
		"profile": map[string]any{
			"record_count":     len(records),
			"null_count":       nullCount,
			"field_count":      fieldCount,
			"profile_complete": true,
		},
		"iteration": asInt(state["iteration"]) + 1,
	}, nil
}

func identifyAnomalies(ctx context.Context, args map[string]any) (any, error) {
	state, _ := args["state"].(map[string]any)
	records := asRecords(state["records"])
	profile, _ := state["profile"].(map[string]any)

	var anomalies []any

	nullCount := asInt(profile["null_count"])
	fieldCount := asInt(profile["field_count"])
	if fieldCount > 0 && float64(nullCount) > float64(fieldCount)*0.1 {
		anomalies = append(anomalies, map[string]any{
			"type":     "high_null_count",
			"severity": "warning",
			"count":    nullCount,
		})
	}

	if dups := duplicateCount(records); dups > 0 {
		anomalies = append(anomalies, map[string]any{
			"type":     "duplicate_records",
			"severity": "warning",
			"count":    dups,
		})
	}

	return map[string]any{
		"anomalies":     anomalies,
		"anomaly_count": len(anomalies),
	}, nil
}

func generateRules(ctx context.Context, args map[string]any) (any, error) {
	state, _ := args["state"].(map[string]any)
	anomalies, _ := state["anomalies"].([]any)

	var rules []any
	for _, a := range anomalies {
		anomaly, _ := a.(map[string]any)
		switch anomaly["type"] {
		case "high_null_count":
			rules = append(rules, map[string]any{
				"id":          "rule_null_check",
				"description": "Null values should be < 10% of fields",
				"fix":         "drop_null_fields",
			})
		case "duplicate_records":
			rules = append(rules, map[string]any{
				"id":          "rule_uniqueness",
				"description": "Records should be unique",
				"fix":         "dedupe",
			})
		}
	}

	return map[string]any{
		"rules":      rules,
		"rule_count": len(rules),
	}, nil
}

func applyRules(ctx context.Context, args map[string]any) (any, error) {
	state, _ := args["state"].(map[string]any)
	records := asRecords(state["records"])
	rules, _ := state["rules"].([]any)

	applied := 0
	fixed := 0
	for _, r := range rules {
		rule, _ := r.(map[string]any)
		switch rule["fix"] {
		case "drop_null_fields":
			records = dropNullFields(records)
			fixed++
		case "dedupe":
			records = dedupeRecords(records)
			fixed++
		}
		applied++
	}

	return map[string]any{
		"records":         toAnySlice(records),
		"rules_applied":   asInt(state["rules_applied"]) + applied,
		"anomalies_fixed": asInt(state["anomalies_fixed"]) + fixed,
	}, nil
}

func summarizeResults(ctx context.Context, args map[string]any) (any, error) {
	state, _ := args["state"].(map[string]any)
	return map[string]any{
		"summary": map[string]any{
			"total_iterations":    asInt(state["iteration"]),
			"final_anomaly_count": asInt(state["anomaly_count"]),
			"total_rules_applied": asInt(state["rules_applied"]),
			"anomalies_fixed":     asInt(state["anomalies_fixed"]),
		},
	}, nil
}

// --- Record helpers ---

func asRecords(v any) []map[string]any {
	switch records := v.(type) {
	case []map[string]any:
		return records
	case []any:
		out := make([]map[string]any, 0, len(records))
		for _, r := range records {
			if rec, ok := r.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func duplicateCount(records []map[string]any) int {
	seen := make(map[string]bool, len(records))
	dups := 0
	for _, rec := range records {
		key := recordKey(rec)
		if seen[key] {
			dups++
		}
		seen[key] = true
	}
	return dups
}

func dropNullFields(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		clean := make(map[string]any, len(rec))
		for k, v := range rec {
			if v != nil {
				clean[k] = v
			}
		}
		out = append(out, clean)
	}
	return out
}

func dedupeRecords(records []map[string]any) []map[string]any {
	seen := make(map[string]bool, len(records))
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		key := recordKey(rec)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// recordKey is a stable identity for duplicate detection. JSON encoding of
// maps sorts keys, so equal records always produce equal keys.
func recordKey(rec map[string]any) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(b)
}

func toAnySlice(records []map[string]any) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}
