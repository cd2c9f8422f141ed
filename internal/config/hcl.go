package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclFile is the top-level structure of a .bldr.hcl file.
type hclFile struct {
	Name        string        `hcl:"name,optional"`
	Description string        `hcl:"description,optional"`
	Profiles    []*hclProfile `hcl:"profile,block"`
	Tasks       []*hclTask    `hcl:"task,block"`
	Logging     *hclLogging   `hcl:"logging,block"`
	History     *hclHistory   `hcl:"history,block"`
	Reporting   *hclReporting `hcl:"reporting,block"`
	Watch       *hclWatch     `hcl:"watch,block"`
	Schedule    *hclSchedule  `hcl:"schedule,block"`
}

type hclProfile struct {
	Name        string   `hcl:"name,label"`
	Description string   `hcl:"description,optional"`
	Tasks       []string `hcl:"tasks,optional"`
	Uses        *hclUses `hcl:"uses,block"`
}

type hclUses struct {
	Before []string `hcl:"before,optional"`
	After  []string `hcl:"after,optional"`
}

type hclTask struct {
	Name         string     `hcl:"name,label"`
	Description  string     `hcl:"description,optional"`
	RunOnFailure *bool      `hcl:"run_on_failure,optional"`
	Calls        []*hclCall `hcl:"call,block"`
}

// hclCall keeps its body undecoded; every attribute becomes a call option.
type hclCall struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclLogging struct {
	Level  string `hcl:"level,optional"`
	Path   string `hcl:"path,optional"`
	Format string `hcl:"format,optional"`
}

type hclHistory struct {
	Enabled *bool  `hcl:"enabled,optional"`
	Path    string `hcl:"path,optional"`
}

type hclReporting struct {
	Enabled *bool  `hcl:"enabled,optional"`
	Dir     string `hcl:"dir,optional"`
}

type hclWatch struct {
	Paths    []string `hcl:"paths,optional"`
	Ignore   []string `hcl:"ignore,optional"`
	Debounce string   `hcl:"debounce,optional"`
}

type hclSchedule struct {
	Cron string `hcl:"cron,optional"`
}

// readHCL parses an HCL project file into the settings map layout used by
// the other formats. Only values present in the file are set.
func readHCL(path string) (map[string]any, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	settings := map[string]any{}
	setString(settings, "name", parsed.Name)
	setString(settings, "description", parsed.Description)

	if len(parsed.Profiles) > 0 {
		profiles := make(map[string]any, len(parsed.Profiles))
		for _, p := range parsed.Profiles {
			if _, dup := profiles[p.Name]; dup {
				return nil, fmt.Errorf("%s: duplicate profile %q", path, p.Name)
			}
			entry := map[string]any{"tasks": toAnySlice(p.Tasks)}
			setString(entry, "description", p.Description)
			if p.Uses != nil {
				entry["uses"] = map[string]any{
					"before": toAnySlice(p.Uses.Before),
					"after":  toAnySlice(p.Uses.After),
				}
			}
			profiles[p.Name] = entry
		}
		settings["profiles"] = profiles
	}

	if len(parsed.Tasks) > 0 {
		tasks := make(map[string]any, len(parsed.Tasks))
		for _, t := range parsed.Tasks {
			if _, dup := tasks[t.Name]; dup {
				return nil, fmt.Errorf("%s: duplicate task %q", path, t.Name)
			}
			calls := make([]any, 0, len(t.Calls))
			for _, c := range t.Calls {
				options, err := callOptions(c)
				if err != nil {
					return nil, fmt.Errorf("%s: task %q: %w", path, t.Name, err)
				}
				calls = append(calls, map[string]any{"type": c.Type, "config": options})
			}
			entry := map[string]any{"calls": calls}
			setString(entry, "description", t.Description)
			if t.RunOnFailure != nil {
				entry["runonfailure"] = *t.RunOnFailure
			}
			tasks[t.Name] = entry
		}
		settings["tasks"] = tasks
	}

	if l := parsed.Logging; l != nil {
		section := map[string]any{}
		setString(section, "level", l.Level)
		setString(section, "path", l.Path)
		setString(section, "format", l.Format)
		setSection(settings, "logging", section)
	}
	if h := parsed.History; h != nil {
		section := map[string]any{}
		if h.Enabled != nil {
			section["enabled"] = *h.Enabled
		}
		setString(section, "path", h.Path)
		setSection(settings, "history", section)
	}
	if r := parsed.Reporting; r != nil {
		section := map[string]any{}
		if r.Enabled != nil {
			section["enabled"] = *r.Enabled
		}
		setString(section, "dir", r.Dir)
		setSection(settings, "reporting", section)
	}
	if w := parsed.Watch; w != nil {
		section := map[string]any{}
		if w.Paths != nil {
			section["paths"] = toAnySlice(w.Paths)
		}
		if w.Ignore != nil {
			section["ignore"] = toAnySlice(w.Ignore)
		}
		setString(section, "debounce", w.Debounce)
		setSection(settings, "watch", section)
	}
	if s := parsed.Schedule; s != nil {
		section := map[string]any{}
		setString(section, "cron", s.Cron)
		setSection(settings, "schedule", section)
	}

	return settings, nil
}

// callOptions evaluates the attributes of a call block.
func callOptions(c *hclCall) (map[string]any, error) {
	attrs, diags := c.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("call %q: %w", c.Type, diags)
	}

	options := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("call %q: attribute %q: %w", c.Type, name, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("call %q: attribute %q: %w", c.Type, name, err)
		}
		options[name] = native
	}
	return options, nil
}

// ctyToNative converts a cty value to plain Go values: strings, float64,
// bools, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func setSection(settings map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		settings[key] = section
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
