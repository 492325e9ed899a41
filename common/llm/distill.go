package llm

import "encoding/json"

// schema branch keys whose subtrees must also be distilled.
var schemaBranchKeys = []string{"anyOf", "allOf", "oneOf"}

// DistillSchema returns a structurally identical copy of a JSON schema with
// every human-facing "description" field removed, recursing through object
// properties, array items, combinator branches and definitions. Used when a
// model keeps failing against the annotated schema: a bare schema gives the
// fallback model less prose to get distracted by.
func DistillSchema(schema any) any {
	data, err := json.Marshal(schema)
	if err != nil {
		return schema
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return schema
	}

	return distillNode(tree)
}

func distillNode(node any) any {
	switch n := node.(type) {
	case map[string]any:
		delete(n, "description")

		if props, ok := n["properties"].(map[string]any); ok {
			for key, val := range props {
				props[key] = distillNode(val)
			}
		}
		if items, ok := n["items"]; ok {
			n["items"] = distillNode(items)
		}
		if defs, ok := n["$defs"].(map[string]any); ok {
			for key, val := range defs {
				defs[key] = distillNode(val)
			}
		}
		for _, key := range schemaBranchKeys {
			if branches, ok := n[key].([]any); ok {
				for i, branch := range branches {
					branches[i] = distillNode(branch)
				}
			}
		}
		return n

	case []any:
		for i, item := range n {
			n[i] = distillNode(item)
		}
		return n

	default:
		return node
	}
}
