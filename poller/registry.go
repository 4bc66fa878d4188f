package poller

import (
	"fmt"
	"sort"

	"github.com/onnwee/twitch-recorder/config"
)

// Options is the per-streamer options bag from the config file. Only actions interpret it.
type Options map[string]any

// StringValue returns the option as a string, or "" when absent or not a string.
func (o Options) StringValue(key string) string {
	s, _ := o[key].(string)
	return s
}

// StringList returns the option as a list of strings. A single string is treated as a one-element list.
func (o Options) StringList(key string) ([]string, error) {
	switch v := o[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("option %s[%d]: want string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %s: want list of strings, got %T", key, v)
	}
}

// Registry maps normalized streamer logins to their options. It is not modified after construction.
type Registry struct {
	streamers map[string]Options
	logins    []string
}

// NewRegistry builds a registry, normalizing every key.
// Later duplicates (after normalization) overwrite earlier ones; config.Load already rejects them.
func NewRegistry(streamers map[string]map[string]any) *Registry {
	r := &Registry{streamers: make(map[string]Options, len(streamers))}
	for name, opts := range streamers {
		if opts == nil {
			opts = map[string]any{}
		}
		r.streamers[config.NormalizeLogin(name)] = Options(opts)
	}
	r.logins = make([]string, 0, len(r.streamers))
	for login := range r.streamers {
		r.logins = append(r.logins, login)
	}
	sort.Strings(r.logins)
	return r
}

// Lookup normalizes id and returns its options.
func (r *Registry) Lookup(id string) (string, Options, bool) {
	login := config.NormalizeLogin(id)
	opts, ok := r.streamers[login]
	return login, opts, ok
}

// Logins returns the tracked logins in sorted order. Callers must not modify the slice.
func (r *Registry) Logins() []string { return r.logins }

// Len is the number of tracked streamers.
func (r *Registry) Len() int { return len(r.logins) }
