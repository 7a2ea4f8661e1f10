package feed

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one configured feed endpoint.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Sources maps source keys to feed endpoints. The set is immutable once
// built; run requests select a subset of its keys.
type Sources struct {
	byKey map[string]Source
}

// defaultSources are the feeds monitored when no override file is given.
var defaultSources = map[string]Source{
	"techcrunch":  {Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
	"venturebeat": {Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/"},
	"wired":       {Name: "Wired AI", URL: "https://www.wired.com/feed/tag/ai/latest/rss"},
	"guardian":    {Name: "The Guardian Tech", URL: "https://www.theguardian.com/uk/technology/rss"},
	"mittr":       {Name: "MIT Technology Review", URL: "https://www.technologyreview.com/feed/"},
}

// DefaultSources returns the built-in source set.
func DefaultSources() *Sources {
	return NewSources(defaultSources)
}

// NewSources builds a source set from an explicit key map.
func NewSources(byKey map[string]Source) *Sources {
	out := make(map[string]Source, len(byKey))
	for k, s := range byKey {
		out[strings.ToLower(strings.TrimSpace(k))] = s
	}
	return &Sources{byKey: out}
}

// LoadSources reads a YAML source map (key -> {name, url}) from path.
func LoadSources(path string) (*Sources, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sources file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var parsed map[string]Source
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("sources file contains no sources")
	}

	byKey := make(map[string]Source, len(parsed))
	for k, s := range parsed {
		key := strings.ToLower(strings.TrimSpace(k))
		s.Name = strings.TrimSpace(s.Name)
		s.URL = strings.TrimSpace(s.URL)
		if key == "" || s.URL == "" {
			return nil, fmt.Errorf("source %q is missing a key or url", k)
		}
		if s.Name == "" {
			s.Name = key
		}
		byKey[key] = s
	}
	return &Sources{byKey: byKey}, nil
}

// ByKey returns the source registered under key.
func (s *Sources) ByKey(key string) (Source, bool) {
	src, ok := s.byKey[strings.ToLower(strings.TrimSpace(key))]
	return src, ok
}

// Keys returns all registered source keys, sorted.
func (s *Sources) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Select resolves the requested keys, falling back to every registered
// source when the request names none. Unknown keys are skipped.
func (s *Sources) Select(requested []string) []string {
	if len(requested) == 0 {
		return s.Keys()
	}
	out := make([]string, 0, len(requested))
	for _, k := range requested {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, ok := s.byKey[key]; ok {
			out = append(out, key)
		}
	}
	return out
}
