package typemap

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule - правило префикса или суффикса
type Rule struct {
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
}

// Rules - упорядоченный список правил; порядок задает приоритет
type Rules []Rule

// UnmarshalYAML принимает как отображение (порядок ключей сохраняется),
// так и список объектов {pattern, type}:
//
//	prefix:
//	  dt_: datetime
//	  is_: bit
func (r *Rules) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Rules, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var pattern, sqlType string
			if err := node.Content[i].Decode(&pattern); err != nil {
				return err
			}
			if err := node.Content[i+1].Decode(&sqlType); err != nil {
				return err
			}
			out = append(out, Rule{Pattern: pattern, Type: sqlType})
		}
		*r = out
		return nil
	case yaml.SequenceNode:
		var list []Rule
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("line %d: rules must be a mapping or a list", node.Line)
	}
}

// MarshalYAML сохраняет правила отображением в исходном порядке
func (r Rules) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, rule := range r {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.Pattern},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.Type},
		)
	}
	return node, nil
}
