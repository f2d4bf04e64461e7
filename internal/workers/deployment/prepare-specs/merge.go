package preparespecs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pipeline-workers/internal/common/errors"
	"pipeline-workers/internal/common/jsonorder"
)

// MergeTaskDefinition folds spec into taskDef in place.
//
// For each key of the container spec's first definition the task definition's
// value must already exist: lists are extended and objects are merged with the
// spec's values winning. Keys only present in the task definition are left
// untouched. cpu and memory are replaced, and one {"key","value"} tag is
// appended per spec tag. Members keep the order they have in the template;
// keys new to a merged object follow in the spec's order.
func MergeTaskDefinition(taskDef *jsonorder.Object, spec *ContainerSpec) error {
	defs, target, err := firstContainer(*taskDef)
	if err != nil {
		return err
	}
	if len(spec.ContainerDefinitions) == 0 || isNull(spec.ContainerDefinitions[0]) {
		return errors.NewMergeError("container spec has no containerDefinitions[0]")
	}
	source, err := jsonorder.Parse(spec.ContainerDefinitions[0])
	if err != nil {
		return errors.NewMergeError(fmt.Sprintf("container spec containerDefinitions[0]: %v", err))
	}

	for _, member := range source {
		if err := mergeValue(&target, member.Key, member.Value); err != nil {
			return err
		}
	}

	if isNull(spec.CPU) {
		return errors.NewMergeError("container spec has no cpu")
	}
	if isNull(spec.Memory) {
		return errors.NewMergeError("container spec has no memory")
	}
	if _, ok := taskDef.Get("cpu"); !ok {
		return errors.NewMergeError("task definition has no cpu")
	}
	if _, ok := taskDef.Get("memory"); !ok {
		return errors.NewMergeError("task definition has no memory")
	}

	if defs[0], err = jsonorder.Marshal(target); err != nil {
		return errors.NewMergeError(fmt.Sprintf("encode containerDefinitions[0]: %v", err))
	}
	if err := setValue(taskDef, "containerDefinitions", defs); err != nil {
		return err
	}
	taskDef.Set("cpu", spec.CPU)
	taskDef.Set("memory", spec.Memory)

	return appendTags(taskDef, spec.Tags)
}

func firstContainer(taskDef jsonorder.Object) ([]json.RawMessage, jsonorder.Object, error) {
	raw, _ := taskDef.Get("containerDefinitions")
	var defs []json.RawMessage
	if kindOf(raw) != "list" || json.Unmarshal(raw, &defs) != nil || len(defs) == 0 {
		return nil, nil, errors.NewMergeError("task definition has no containerDefinitions[0]")
	}
	if kindOf(defs[0]) != "object" {
		return nil, nil, errors.NewMergeError("task definition containerDefinitions[0] is not an object")
	}
	first, err := jsonorder.Parse(defs[0])
	if err != nil {
		return nil, nil, errors.NewMergeError(fmt.Sprintf("task definition containerDefinitions[0]: %v", err))
	}
	return defs, first, nil
}

func mergeValue(target *jsonorder.Object, key string, value json.RawMessage) error {
	current, ok := target.Get(key)
	if !ok {
		return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s is not in the task definition", key))
	}

	switch kindOf(current) {
	case "list":
		if kindOf(value) != "list" {
			return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s must be a list, got %s", key, kindOf(value)))
		}
		var cur, items []json.RawMessage
		if err := json.Unmarshal(current, &cur); err != nil {
			return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s: %v", key, err))
		}
		if err := json.Unmarshal(value, &items); err != nil {
			return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s: %v", key, err))
		}
		return setValue(target, key, append(cur, items...))
	case "object":
		if kindOf(value) != "object" {
			return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s must be an object, got %s", key, kindOf(value)))
		}
		cur, err := jsonorder.Parse(current)
		if err != nil {
			return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s: %v", key, err))
		}
		fields, err := jsonorder.Parse(value)
		if err != nil {
			return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s: %v", key, err))
		}
		for _, f := range fields {
			cur.Set(f.Key, f.Value)
		}
		return setValue(target, key, cur)
	default:
		return errors.NewMergeError(fmt.Sprintf("containerDefinitions[0].%s in the task definition is a %s and cannot be merged", key, kindOf(current)))
	}
}

func appendTags(taskDef *jsonorder.Object, tags jsonorder.Object) error {
	if tags == nil {
		return errors.NewMergeError("container spec has no tags")
	}
	raw, _ := taskDef.Get("tags")
	var existing []json.RawMessage
	if kindOf(raw) != "list" || json.Unmarshal(raw, &existing) != nil {
		return errors.NewMergeError("task definition tags must be a list")
	}

	for _, tag := range tags {
		entry := jsonorder.Object{}
		entry.SetString("key", tag.Key)
		entry.Set("value", tag.Value)
		encoded, err := jsonorder.Marshal(entry)
		if err != nil {
			return errors.NewMergeError(fmt.Sprintf("tag %q: %v", tag.Key, err))
		}
		existing = append(existing, encoded)
	}
	return setValue(taskDef, "tags", existing)
}

func setValue(o *jsonorder.Object, key string, v interface{}) error {
	encoded, err := jsonorder.Marshal(v)
	if err != nil {
		return errors.NewMergeError(fmt.Sprintf("encode %s: %v", key, err))
	}
	o.Set(key, encoded)
	return nil
}

// kindOf names the JSON type of a raw value from its first byte.
func kindOf(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "missing value"
	}
	switch trimmed[0] {
	case 'n':
		return "null"
	case '[':
		return "list"
	case '{':
		return "object"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

func isNull(raw json.RawMessage) bool {
	k := kindOf(raw)
	return k == "null" || k == "missing value"
}

// decodeDocument parses a single JSON object in document order. Numbers keep
// their literal text.
func decodeDocument(data []byte) (jsonorder.Object, error) {
	doc, err := jsonorder.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	return doc, nil
}

// encodeDocument writes doc compactly in member order without HTML escaping.
func encodeDocument(doc jsonorder.Object) (string, error) {
	out, err := jsonorder.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
