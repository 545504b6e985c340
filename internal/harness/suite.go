package harness

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass, either because it
// could not be loaded or run, or because assertions failed.
type ScenarioFailure struct {
	Name   string   `json:"name,omitempty"`
	Path   string   `json:"path"`
	Errors []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files in dir, sorted.
func FindScenarios(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// RunDir loads and runs every scenario in dir.
func RunDir(fs afero.Fs, dir string, opts ...Option) (*SuiteResult, error) {
	paths, err := FindScenarios(fs, dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	res := &SuiteResult{}
	for _, path := range paths {
		res.Total++
		scenario, err := LoadScenario(fs, path)
		if err != nil {
			res.fail(ScenarioFailure{Path: path, Errors: []string{err.Error()}})
			continue
		}
		result, err := Run(scenario, opts...)
		if err != nil {
			res.fail(ScenarioFailure{Name: scenario.Name, Path: path, Errors: []string{err.Error()}})
			continue
		}
		if !result.Pass {
			res.fail(ScenarioFailure{Name: scenario.Name, Path: path, Errors: result.Errors})
			continue
		}
		res.Passed++
	}
	return res, nil
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
