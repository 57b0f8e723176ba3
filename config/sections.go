package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Section maps one listing page to one output file.
type Section struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`   // relative to Config.BaseURL
	Output string `yaml:"output"` // file name inside Config.OutputDir
}

type sectionsFile struct {
	Sections []Section `yaml:"sections"`
}

// DefaultSections returns the shop catalogue, each section a sub-path of the
// one before it.
func DefaultSections() []Section {
	return []Section{
		{Name: "home", Path: "more/", Output: "home.csv"},
		{Name: "computers", Path: "more/computers/", Output: "computers.csv"},
		{Name: "laptops", Path: "more/computers/laptops/", Output: "laptops.csv"},
		{Name: "tablets", Path: "more/computers/tablets/", Output: "tablets.csv"},
		{Name: "phones", Path: "more/phones/", Output: "phones.csv"},
		{Name: "touch", Path: "more/phones/touch/", Output: "touch.csv"},
	}
}

// LoadSections reads a section catalogue from a YAML file of the form
//
//	sections:
//	  - name: laptops
//	    path: more/computers/laptops/
//	    output: laptops.csv
func LoadSections(path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sections file: %w", err)
	}
	var file sectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode sections file: %w", err)
	}
	for i := range file.Sections {
		if file.Sections[i].Name == "" {
			file.Sections[i].Name = file.Sections[i].Output
		}
	}
	if err := validateSections(file.Sections); err != nil {
		return nil, fmt.Errorf("sections file %s: %w", path, err)
	}
	return file.Sections, nil
}

func validateSections(sections []Section) error {
	if len(sections) == 0 {
		return fmt.Errorf("sections cannot be empty")
	}
	outputs := make(map[string]struct{}, len(sections))
	for i, s := range sections {
		if s.Path == "" {
			return fmt.Errorf("section %d (%s): path cannot be empty", i, s.Name)
		}
		if s.Output == "" {
			return fmt.Errorf("section %d (%s): output cannot be empty", i, s.Name)
		}
		if _, dup := outputs[s.Output]; dup {
			return fmt.Errorf("section %d (%s): duplicate output %q", i, s.Name, s.Output)
		}
		outputs[s.Output] = struct{}{}
	}
	return nil
}
