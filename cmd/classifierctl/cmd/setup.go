package cmd

import (
	"fmt"

	classifier "github.com/plexsphere/classifierd"
)

// buildClassifier loads the rule file named by the --rules flag into a
// fresh Classifier and returns it along with the number of rules loaded.
// The caller owns the returned Classifier and must Close it.
func buildClassifier() (*classifier.Classifier, int, error) {
	rf, err := classifier.LoadRuleFile(ruleFile)
	if err != nil {
		return nil, 0, err
	}

	c := classifier.New(newLogger(), classifier.Options{EnablePrefilter: true})
	for _, spec := range rf.Rules {
		rule, err := spec.Rule()
		if err != nil {
			c.Close()
			return nil, 0, fmt.Errorf("classifierctl: %w", err)
		}
		if err := c.AddRule(rule); err != nil {
			c.Close()
			return nil, 0, fmt.Errorf("classifierctl: add rule %d: %w", spec.ID, err)
		}
	}
	return c, len(rf.Rules), nil
}
