package analysis

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/runner-usage/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report criteria by their config names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("status_filter", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return models.IsRawStatusFilter(s) || models.IsConclusionFilter(s)
	})
	return v
}

// ValidateCriteria checks a criteria set without building a filter
func ValidateCriteria(criteria models.FilterCriteria) error {
	c := criteria.Normalized()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("failed to validate filter criteria: %w", err)
	}

	fe := verrs[0]
	return &models.InvalidFilterConfigError{
		Criterion: fe.Field(),
		Value:     fmt.Sprintf("%v", fe.Value()),
		Reason:    reason(fe),
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "status_filter":
		return "must be one of " + strings.Join(models.StatusFilterValues(), ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "failed '" + fe.Tag() + "' check"
	}
}

// FilterOption configures a Filter
type FilterOption func(*Filter)

// WithClock sets the time source used by the days_back window
func WithClock(now func() time.Time) FilterOption {
	return func(f *Filter) {
		f.now = now
	}
}

// Filter applies a validated criteria set to normalized records
type Filter struct {
	criteria    models.FilterCriteria
	labelNeedle string
	repoNeedle  string
	now         func() time.Time
}

// NewFilter validates criteria and returns a ready filter. An invalid criterion
// yields *models.InvalidFilterConfigError.
func NewFilter(criteria models.FilterCriteria, opts ...FilterOption) (*Filter, error) {
	if err := ValidateCriteria(criteria); err != nil {
		return nil, err
	}

	c := criteria.Normalized()
	f := &Filter{
		criteria:    c,
		labelNeedle: strings.ToLower(c.RunnerLabel),
		repoNeedle:  strings.ToLower(c.RepoPattern),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Criteria returns the normalized criteria
func (f *Filter) Criteria() models.FilterCriteria {
	return f.criteria
}

// Apply returns the records that satisfy every set criterion, in input order.
// Surviving records are not modified. With no criterion set the input is returned as is.
func (f *Filter) Apply(records []models.AnalysisRecord) []models.AnalysisRecord {
	if f.criteria.IsEmpty() {
		return records
	}

	var windowStart, windowEnd time.Time
	if f.criteria.DaysBack > 0 {
		windowEnd = f.now()
		windowStart = windowEnd.AddDate(0, 0, -f.criteria.DaysBack)
	}

	out := make([]models.AnalysisRecord, 0, len(records))
	for i := range records {
		rec := &records[i]
		if f.labelNeedle != "" && !matchesLabel(rec.Labels, f.labelNeedle) {
			continue
		}
		if f.criteria.Status != "" && !matchesStatus(rec, f.criteria.Status) {
			continue
		}
		if f.repoNeedle != "" && !strings.Contains(strings.ToLower(rec.Repo), f.repoNeedle) {
			continue
		}
		if f.criteria.DaysBack > 0 && !inWindow(rec.StartedAt, windowStart, windowEnd) {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

func matchesLabel(labels []string, needle string) bool {
	for _, l := range labels {
		if strings.Contains(strings.ToLower(l), needle) {
			return true
		}
	}
	return false
}

// matchesStatus compares lifecycle values (completed, in_progress, queued, waiting)
// with the raw status and verdicts with the conclusion
func matchesStatus(rec *models.AnalysisRecord, status string) bool {
	if models.IsRawStatusFilter(status) {
		return strings.EqualFold(rec.Status, status)
	}
	return strings.EqualFold(rec.Conclusion, status)
}

func inWindow(started *time.Time, start, end time.Time) bool {
	if started == nil || started.IsZero() {
		return false
	}
	return !started.Before(start) && !started.After(end)
}
