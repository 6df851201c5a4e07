package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Issue is one schema violation.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError lists every schema violation found in a Config.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c.view()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) *ValidationError {
	ve := &ValidationError{}
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		if len(path) > 0 && path[0] == "#Config" {
			path = path[1:]
		}
		issue := Issue{Path: strings.Join(path, ".")}
		if issue.Path == "" {
			issue.Message = e.Error()
		} else {
			format, args := e.Msg()
			issue.Message = fmt.Sprintf(format, args...)
		}
		if seen[issue.String()] {
			continue
		}
		seen[issue.String()] = true
		ve.Issues = append(ve.Issues, issue)
	}
	if len(ve.Issues) == 0 {
		ve.Issues = append(ve.Issues, Issue{Message: err.Error()})
	}
	return ve
}

// view is the schema-facing shape of c. Durations are nanoseconds and nil
// lists are empty.
func (c Config) view() map[string]any {
	return map[string]any{
		"api": map[string]any{
			"base_url":  c.API.BaseURL,
			"endpoints": list(c.API.Endpoints),
			"token":     c.API.Token,
		},
		"static": map[string]any{
			"origin":   c.Static.Origin,
			"manifest": list(c.Static.Manifest),
		},
		"cache": map[string]any{
			"prefix":           c.Cache.Prefix,
			"version":          c.Cache.Version,
			"resource_markers": list(c.Cache.ResourceMarkers),
		},
		"network": map[string]any{
			"timeout": int64(c.Network.Timeout),
		},
		"store": map[string]any{
			"path": c.Store.Path,
		},
		"realtime": map[string]any{
			"url":             c.Realtime.URL,
			"reconnect_delay": int64(c.Realtime.ReconnectDelay),
			"max_attempts":    c.Realtime.MaxAttempts,
			"dial_timeout":    int64(c.Realtime.DialTimeout),
		},
		"sync": map[string]any{
			"tag":            c.Sync.Tag,
			"probe_interval": int64(c.Sync.ProbeInterval),
			"replay_timeout": int64(c.Sync.ReplayTimeout),
		},
		"proxy": map[string]any{
			"listen": c.Proxy.Listen,
		},
	}
}

func list(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
