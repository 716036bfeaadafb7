package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// RepositoryRef points at a hosted source repository.
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns "owner/name".
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// Facts are objective values observed at the resource's sources.
// A nil pointer means the value is unknown rather than zero.
type Facts struct {
	Stars      *int       `json:"stars,omitempty"`
	Forks      *int       `json:"forks,omitempty"`
	OpenIssues *int       `json:"open_issues,omitempty"`
	Language   string     `json:"language,omitempty"`
	License    string     `json:"license,omitempty"`
	LastPush   *time.Time `json:"last_push,omitempty"`
	Topics     []string   `json:"topics,omitempty"`
	Archived   *bool      `json:"archived,omitempty"`
}

// Resource is a curated external tool, library or integration entry.
type Resource struct {
	ID             uuid.UUID      `json:"id"`
	Slug           string         `json:"slug"`
	Title          string         `json:"title"`
	Category       string         `json:"category,omitempty"`
	URL            string         `json:"url"`
	Repository     *RepositoryRef `json:"repository,omitempty"`
	Description    string         `json:"description"`
	Overview       string         `json:"overview,omitempty"`
	Features       []string       `json:"features,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Difficulty     string         `json:"difficulty,omitempty"`
	Facts          Facts          `json:"facts"`
	Screenshots    []string       `json:"screenshots,omitempty"`
	LastVerifiedAt *time.Time     `json:"last_verified_at,omitempty"`
	ContentHash    string         `json:"content_hash"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Field names that can be proposed and applied.
const (
	FieldDescription = "description"
	FieldOverview    = "overview"
	FieldFeatures    = "features"
	FieldTags        = "tags"
	FieldDifficulty  = "difficulty"
	FieldStars       = "stars"
	FieldForks       = "forks"
	FieldOpenIssues  = "open_issues"
	FieldLanguage    = "language"
	FieldLicense     = "license"
	FieldLastPush    = "last_push"
	FieldTopics      = "topics"
	FieldArchived    = "archived"
)

// FieldKind separates analyzer-derived content from collector-derived metrics.
type FieldKind string

// Field kinds.
const (
	KindContent FieldKind = "content"
	KindMetric  FieldKind = "metric"
)

// FieldSpec describes one mutable resource field.
type FieldSpec struct {
	Name   string
	Label  string
	Kind   FieldKind
	Hashed bool
}

// fieldSpecs is ordered: metrics first, then content, which is the order
// proposed changes are emitted in.
var fieldSpecs = []FieldSpec{
	{Name: FieldStars, Label: "GitHub stars", Kind: KindMetric},
	{Name: FieldForks, Label: "Forks", Kind: KindMetric},
	{Name: FieldOpenIssues, Label: "Open issues", Kind: KindMetric},
	{Name: FieldLastPush, Label: "Last push", Kind: KindMetric},
	{Name: FieldLanguage, Label: "Primary language", Kind: KindMetric},
	{Name: FieldLicense, Label: "License", Kind: KindMetric},
	{Name: FieldTopics, Label: "Topics", Kind: KindMetric},
	{Name: FieldArchived, Label: "Archived", Kind: KindMetric},
	{Name: FieldDescription, Label: "Description", Kind: KindContent, Hashed: true},
	{Name: FieldOverview, Label: "Overview", Kind: KindContent, Hashed: true},
	{Name: FieldFeatures, Label: "Key features", Kind: KindContent},
	{Name: FieldTags, Label: "Tags", Kind: KindContent},
	{Name: FieldDifficulty, Label: "Difficulty", Kind: KindContent},
}

// FieldSpecs returns the ordered list of mutable fields.
func FieldSpecs() []FieldSpec {
	return slices.Clone(fieldSpecs)
}

// LookupField returns the FieldSpec for a field name.
func LookupField(name string) (FieldSpec, bool) {
	for _, spec := range fieldSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// FieldValue returns the current value of a named field.
func (r *Resource) FieldValue(name string) (any, error) {
	switch name {
	case FieldDescription:
		return r.Description, nil
	case FieldOverview:
		return r.Overview, nil
	case FieldFeatures:
		return r.Features, nil
	case FieldTags:
		return r.Tags, nil
	case FieldDifficulty:
		return r.Difficulty, nil
	case FieldStars:
		return derefInt(r.Facts.Stars), nil
	case FieldForks:
		return derefInt(r.Facts.Forks), nil
	case FieldOpenIssues:
		return derefInt(r.Facts.OpenIssues), nil
	case FieldLanguage:
		return r.Facts.Language, nil
	case FieldLicense:
		return r.Facts.License, nil
	case FieldLastPush:
		if r.Facts.LastPush == nil {
			return nil, nil
		}
		return r.Facts.LastPush.UTC().Format(time.RFC3339), nil
	case FieldTopics:
		return r.Facts.Topics, nil
	case FieldArchived:
		if r.Facts.Archived == nil {
			return nil, nil
		}
		return *r.Facts.Archived, nil
	default:
		return nil, fmt.Errorf("unknown field: %s", name)
	}
}

// SetField writes value into the named field. Values may arrive in their
// native Go type or as decoded JSON (float64, []any, RFC3339 strings).
func (r *Resource) SetField(name string, value any) error {
	switch name {
	case FieldDescription, FieldOverview, FieldDifficulty, FieldLanguage, FieldLicense:
		s, err := asString(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		switch name {
		case FieldDescription:
			r.Description = s
		case FieldOverview:
			r.Overview = s
		case FieldDifficulty:
			r.Difficulty = s
		case FieldLanguage:
			r.Facts.Language = s
		case FieldLicense:
			r.Facts.License = s
		}
	case FieldFeatures, FieldTags, FieldTopics:
		list, err := asStrings(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		switch name {
		case FieldFeatures:
			r.Features = list
		case FieldTags:
			r.Tags = list
		case FieldTopics:
			r.Facts.Topics = list
		}
	case FieldStars, FieldForks, FieldOpenIssues:
		n, err := asInt(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		switch name {
		case FieldStars:
			r.Facts.Stars = &n
		case FieldForks:
			r.Facts.Forks = &n
		case FieldOpenIssues:
			r.Facts.OpenIssues = &n
		}
	case FieldLastPush:
		if value == nil {
			r.Facts.LastPush = nil
			return nil
		}
		t, err := asTime(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		r.Facts.LastPush = &t
	case FieldArchived:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("field %s: expected bool, got %T", name, value)
		}
		r.Facts.Archived = &b
	default:
		return fmt.Errorf("unknown field: %s", name)
	}
	return nil
}

// ComputeContentHash hashes the committed description and overview.
// The hash only depends on normalized text, so whitespace-only edits do not change it.
func ComputeContentHash(description, overview string) string {
	sum := blake2b.Sum256([]byte(NormalizeText(description) + "\x00" + NormalizeText(overview)))
	return hex.EncodeToString(sum[:])
}

// RefreshContentHash recomputes ContentHash and reports whether it changed.
func (r *Resource) RefreshContentHash() bool {
	next := ComputeContentHash(r.Description, r.Overview)
	changed := next != r.ContentHash
	r.ContentHash = next
	return changed
}

// NormalizeText collapses whitespace and trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func asStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return slices.Clone(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list item, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		return int(t), nil
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, fmt.Errorf("expected integer: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected RFC3339 time: %w", err)
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("expected time, got %T", v)
	}
}
