package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gtu-nova/mavsign/mavlink"
)

// parseValues reads message values written as YAML. A sequence gives
// every field in wire order; a mapping names fields and leaves the rest
// zero.
//
//	[217, 9, 0, 0, 0, 0, 0, 176, 1, 0, 0]
//	{param1: 217, param2: 9, command: 176, target_system: 1}
func parseValues(def *mavlink.MessageDefinition, text string) ([]interface{}, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return nil, err
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = *node.Content[0]
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var values []interface{}
		if err := node.Decode(&values); err != nil {
			return nil, err
		}
		return values, nil
	case yaml.MappingNode:
		var named map[string]interface{}
		if err := node.Decode(&named); err != nil {
			return nil, err
		}
		values := make([]interface{}, len(def.Fields))
		for i, f := range def.Fields {
			values[i] = zeroValue(f)
		}
		for name, v := range named {
			i := def.FieldIndex(strings.ToLower(name))
			if i < 0 {
				return nil, fmt.Errorf("%s has no field %q", def.Name, name)
			}
			values[i] = v
		}
		return values, nil
	}
	return nil, fmt.Errorf("values must be a YAML list or mapping")
}

func zeroValue(f mavlink.Field) interface{} {
	switch {
	case f.ArrayLen == 0:
		return 0
	case f.Type == mavlink.Char:
		return ""
	}
	return []int{}
}
