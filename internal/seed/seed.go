// Package seed creates resources and alert rules from a YAML file.
//
// A seed file looks like:
//
//	user: alice
//	resources:
//	  - name: stripe
//	    pattern: api.stripe.com/*
//	    api_key: sk_test_123
//	    limit: 1000
//	    period: day
//	    alerts: [80, 95]
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ryhazerus/apiwatch"
	"gopkg.in/yaml.v3"
)

// File is the decoded seed file.
type File struct {
	User      string     `yaml:"user"`
	Resources []Resource `yaml:"resources"`
}

// Resource is one resource entry of a seed file.
type Resource struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	APIKey  string `yaml:"api_key"`
	Limit   int64  `yaml:"limit"`
	Period  string `yaml:"period"`
	Alerts  []int  `yaml:"alerts"`
}

// Tracker is the subset of *apiwatch.Tracker used for seeding.
type Tracker interface {
	CreateResource(ctx context.Context, userID string, spec apiwatch.ResourceSpec) (apiwatch.ResourceSummary, error)
	CreateAlertRule(ctx context.Context, userID, resourceID string, threshold int) (apiwatch.RuleView, error)
}

// Result summarises what Apply created.
type Result struct {
	Resources int
	Rules     int
	Skipped   []string // names of resources that already existed
}

// Parse decodes a seed file. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("decoding seed file: %w", err)
	}
	if f.User == "" {
		return nil, errors.New("seed file: user is required")
	}
	for i, r := range f.Resources {
		if r.Name == "" {
			return nil, fmt.Errorf("seed file: resources[%d]: name is required", i)
		}
	}
	return &f, nil
}

// ParseFile reads and decodes the seed file at path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Apply creates the file's resources and their alert rules for the file's
// user. Resources whose name is already taken are skipped together with
// their rules, so applying the same file twice is harmless.
func Apply(ctx context.Context, t Tracker, f *File) (Result, error) {
	var res Result
	for _, r := range f.Resources {
		created, err := t.CreateResource(ctx, f.User, apiwatch.ResourceSpec{
			Name:       r.Name,
			Pattern:    r.Pattern,
			Credential: []byte(r.APIKey),
			Limit:      r.Limit,
			Period:     r.Period,
		})
		if errors.Is(err, apiwatch.ErrConflict) {
			res.Skipped = append(res.Skipped, r.Name)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("resource %q: %w", r.Name, err)
		}
		res.Resources++

		for _, threshold := range r.Alerts {
			if _, err := t.CreateAlertRule(ctx, f.User, created.ID, threshold); err != nil {
				return res, fmt.Errorf("resource %q: alert %d%%: %w", r.Name, threshold, err)
			}
			res.Rules++
		}
	}
	return res, nil
}
