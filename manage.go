package apiwatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/ryhazerus/apiwatch/store"
)

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "serviceName", Reason: "is required"}
	}
	return name, nil
}

func validateLimit(limit int64) error {
	if limit <= 0 {
		return &ValidationError{Field: "rateLimit", Reason: "must be positive"}
	}
	return nil
}

func validateThreshold(threshold int) error {
	if threshold < MinThreshold || threshold > MaxThreshold {
		return &ValidationError{Field: "thresholdPercentage", Reason: "must be between 50 and 99"}
	}
	return nil
}

// CreateResource starts tracking a new external API for a user. The counter
// starts at zero with its window beginning now.
func (t *Tracker) CreateResource(ctx context.Context, userID string, in ResourceSpec) (ResourceSummary, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return ResourceSummary{}, err
	}
	if err := validateLimit(in.Limit); err != nil {
		return ResourceSummary{}, err
	}
	if _, err := ParsePeriod(in.Period); err != nil {
		return ResourceSummary{}, err
	}
	if len(in.Credential) == 0 {
		return ResourceSummary{}, &ValidationError{Field: "apiKey", Reason: "is required"}
	}

	now := t.clock()
	r := store.Resource{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		Pattern:    strings.TrimSpace(in.Pattern),
		Credential: in.Credential,
		Limit:      in.Limit,
		Period:     in.Period,
		Counter:    store.Counter{WindowStart: now},
		CreatedAt:  now,
	}
	if err := t.store.CreateResource(ctx, r); err != nil {
		return ResourceSummary{}, translate(err)
	}

	t.logger.Info("resource created",
		"resource_id", r.ID,
		"user_id", userID,
		"limit", r.Limit,
		"period", r.Period,
	)
	return t.summarize(r, nil, now), nil
}

// UpdateResource changes the descriptive fields of an owned resource. The
// usage counter and its window are kept.
func (t *Tracker) UpdateResource(ctx context.Context, userID, resourceID string, upd ResourceUpdate) (ResourceSummary, error) {
	if upd.Name == nil && upd.Pattern == nil && upd.Credential == nil && upd.Limit == nil && upd.Period == nil {
		return ResourceSummary{}, &ValidationError{Field: "update", Reason: "at least one field must be provided"}
	}

	r, err := t.store.GetResource(ctx, userID, resourceID)
	if err != nil {
		return ResourceSummary{}, translate(err)
	}
	if upd.Name != nil {
		if r.Name, err = validateName(*upd.Name); err != nil {
			return ResourceSummary{}, err
		}
	}
	if upd.Pattern != nil {
		r.Pattern = strings.TrimSpace(*upd.Pattern)
	}
	if upd.Credential != nil {
		if len(upd.Credential) == 0 {
			return ResourceSummary{}, &ValidationError{Field: "apiKey", Reason: "must not be empty"}
		}
		r.Credential = upd.Credential
	}
	if upd.Limit != nil {
		if err := validateLimit(*upd.Limit); err != nil {
			return ResourceSummary{}, err
		}
		r.Limit = *upd.Limit
	}
	if upd.Period != nil {
		if _, err := ParsePeriod(*upd.Period); err != nil {
			return ResourceSummary{}, err
		}
		r.Period = *upd.Period
	}

	if err := t.store.UpdateResource(ctx, r); err != nil {
		return ResourceSummary{}, translate(err)
	}
	return t.summarize(r, nil, t.clock()), nil
}

// DeleteResource stops tracking a resource and removes its alert rules and
// usage samples.
func (t *Tracker) DeleteResource(ctx context.Context, userID, resourceID string) error {
	if err := t.store.DeleteResource(ctx, userID, resourceID); err != nil {
		return translate(err)
	}
	t.logger.Info("resource deleted", "resource_id", resourceID, "user_id", userID)
	return nil
}

// CreateAlertRule subscribes to a usage threshold on an owned resource.
func (t *Tracker) CreateAlertRule(ctx context.Context, userID, resourceID string, threshold int) (RuleView, error) {
	if err := validateThreshold(threshold); err != nil {
		return RuleView{}, err
	}
	r, err := t.store.GetResource(ctx, userID, resourceID)
	if err != nil {
		return RuleView{}, translate(err)
	}

	rule := store.AlertRule{
		ID:         uuid.NewString(),
		UserID:     userID,
		ResourceID: resourceID,
		Threshold:  threshold,
		Active:     true,
		CreatedAt:  t.clock(),
	}
	if err := t.store.CreateRule(ctx, rule); err != nil {
		return RuleView{}, translate(err)
	}

	v := ruleView(rule)
	v.ServiceName = r.Name
	return v, nil
}

// UpdateAlertRule changes the threshold or active flag of an owned rule.
func (t *Tracker) UpdateAlertRule(ctx context.Context, userID, ruleID string, upd RuleUpdate) (RuleView, error) {
	if upd.Threshold == nil && upd.Active == nil {
		return RuleView{}, &ValidationError{Field: "update", Reason: "at least one field must be provided"}
	}
	if upd.Threshold != nil {
		if err := validateThreshold(*upd.Threshold); err != nil {
			return RuleView{}, err
		}
	}

	rule, err := t.store.GetRule(ctx, userID, ruleID)
	if err != nil {
		return RuleView{}, translate(err)
	}
	if upd.Threshold != nil {
		rule.Threshold = *upd.Threshold
	}
	if upd.Active != nil {
		rule.Active = *upd.Active
	}
	if err := t.store.UpdateRule(ctx, rule); err != nil {
		return RuleView{}, translate(err)
	}

	v := ruleView(rule)
	if r, err := t.store.GetResource(ctx, userID, rule.ResourceID); err == nil {
		v.ServiceName = r.Name
	}
	return v, nil
}

// DeleteAlertRule removes an owned rule.
func (t *Tracker) DeleteAlertRule(ctx context.Context, userID, ruleID string) error {
	return translate(t.store.DeleteRule(ctx, userID, ruleID))
}

// ListAlertRules returns the user's rules, newest first, with the service
// name and current usage of the resource each one watches.
func (t *Tracker) ListAlertRules(ctx context.Context, userID string) ([]RuleView, error) {
	rules, err := t.store.ListRules(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	resources, err := t.store.ListResources(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	byID := make(map[string]store.Resource, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
	}

	now := t.clock()
	out := make([]RuleView, 0, len(rules))
	for _, rule := range rules {
		v := ruleView(rule)
		if r, ok := byID[rule.ResourceID]; ok {
			s := t.summarize(r, nil, now)
			v.ServiceName = s.ServiceName
			v.CurrentUsage = &s.CurrentUsage
			v.RateLimit = &s.RateLimit
		}
		out = append(out, v)
	}
	return out, nil
}
