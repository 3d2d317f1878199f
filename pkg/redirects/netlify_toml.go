package redirects

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// MergeTOML prepends rules to the [[redirects]] array of a netlify.toml
// document. Every other table is kept; comments are not preserved.
func MergeTOML(rules []Rule, existing []byte) ([]byte, error) {
	doc := make(map[string]interface{})
	if len(existing) > 0 {
		if err := toml.Unmarshal(existing, &doc); err != nil {
			return nil, fmt.Errorf("parse netlify.toml: %w", err)
		}
	}

	merged := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		merged = append(merged, map[string]interface{}{
			"from":   r.From,
			"to":     r.To,
			"status": int64(r.Status),
			"force":  r.Force,
		})
	}

	if prev, ok := doc["redirects"]; ok {
		list, ok := prev.([]interface{})
		if !ok {
			return nil, fmt.Errorf("parse netlify.toml: redirects is %T, expected an array of tables", prev)
		}
		merged = append(merged, list...)
	}
	doc["redirects"] = merged

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode netlify.toml: %w", err)
	}
	return out, nil
}

// RulesFromTOML extracts the [[redirects]] rules of a netlify.toml document.
func RulesFromTOML(data []byte) ([]Rule, error) {
	var doc struct {
		Redirects []Rule `toml:"redirects"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse netlify.toml: %w", err)
	}
	return doc.Redirects, nil
}
