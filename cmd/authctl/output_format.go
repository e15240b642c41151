package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

func validateOutputFormat(outputFormat string) error {
	switch strings.ToLower(outputFormat) {
	case "table":
	case "json":
	case "yaml":
	default:
		return errors.Errorf("unknown output format %q", outputFormat)
	}
	return nil
}

// printStructured prints v as json or yaml. It reports false for the table format.
func printStructured(outputFormat string, v interface{}) (bool, error) {
	switch strings.ToLower(outputFormat) {
	case "json":
		prettyJSON, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, errors.Wrap(err, "error formatting output")
		}
		fmt.Println(string(prettyJSON))
		return true, nil
	case "yaml":
		yamlBytes, err := yaml.Marshal(v)
		if err != nil {
			return true, errors.Wrap(err, "error formatting output")
		}
		fmt.Println(string(yamlBytes))
		return true, nil
	}
	return false, nil
}
