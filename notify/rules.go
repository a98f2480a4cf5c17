package notify

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/halcyondata/askdb/errors"
)

// AlertRule maps an error kind to notification behavior: how many
// occurrences within the tracking window warrant a chat ping, and at what
// ticket priority.
type AlertRule struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	Priority  string `yaml:"priority"`
	Silent    bool   `yaml:"silent"`
}

// LoadRules reads alert rules from a YAML file. A missing path yields no
// rules rather than an error, so the rules file stays optional.
func LoadRules(path string) ([]AlertRule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read alert rules %s", path)
	}

	var doc struct {
		Rules []AlertRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse alert rules %s", path)
	}

	for i, rule := range doc.Rules {
		if rule.Kind == "" {
			return nil, errors.Newf("alert rule %d missing kind", i)
		}
		if rule.Threshold < 0 {
			return nil, errors.Newf("alert rule %q has negative threshold", rule.ID)
		}
	}

	return doc.Rules, nil
}

// RuleFor returns the first rule matching kind, or nil.
func RuleFor(rules []AlertRule, kind string) *AlertRule {
	for i := range rules {
		if rules[i].Kind == kind || rules[i].Kind == "*" {
			return &rules[i]
		}
	}
	return nil
}
