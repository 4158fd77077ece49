package config

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/richinex/parley/llm"
)

// ErrInvalid wraps every configuration problem reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks cross-field constraints and reports every problem.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Matrix.Server == "" {
		add("matrix.server is required")
	}
	if c.Matrix.Username == "" {
		add("matrix.username is required")
	}
	if c.Matrix.Password == "" && c.Matrix.AccessToken == "" {
		add("matrix.password or matrix.access_token is required")
	}

	routes, err := c.Routes()
	if err != nil {
		add("%v", err)
	} else {
		problems = append(problems, validateRoutes(routes, c.LLM.DefaultModel)...)
	}

	if n := len(c.LLM.Prompt); n < 1 || n > 3 {
		add("llm.prompt must have one to three parts, got %d", n)
	}
	for _, glob := range c.LLM.NoOptionModels {
		if _, err := path.Match(glob, ""); err != nil {
			add("llm.no_option_models: bad pattern %q", glob)
		}
	}
	if c.LLM.HistorySize < 1 {
		add("llm.history_size must be positive")
	}
	if c.LLM.Timeout < 1 {
		add("llm.timeout must be positive")
	}
	if c.LLM.MaxToolRounds < 1 {
		add("llm.max_tool_rounds must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		add("%v", err)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

func validateRoutes(routes llm.RoutingTable, defaultModel string) []string {
	var problems []string

	owners := make(map[string][]string)
	for _, name := range routes.ProviderNames() {
		p := routes.Providers[name]
		for _, m := range p.Models {
			owners[m] = append(owners[m], name)
		}
		if len(p.Models) > 0 && p.APIKey == "" && !p.Local {
			problems = append(problems, fmt.Sprintf("missing API key for provider '%s' (set api_key or %s)", name, APIKeyEnv(name)))
		}
	}

	models := make([]string, 0, len(owners))
	for m := range owners {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		if names := owners[m]; len(names) > 1 {
			problems = append(problems, fmt.Sprintf("model '%s' claimed by several providers: %s", m, strings.Join(names, ", ")))
		}
	}

	if routes.Fallback != "" {
		if _, ok := routes.Providers[routes.Fallback]; !ok {
			problems = append(problems, fmt.Sprintf("fallback provider '%s' is not configured", routes.Fallback))
		}
	}

	switch {
	case defaultModel == "":
		problems = append(problems, "llm.default_model is required")
	case len(owners[defaultModel]) == 0:
		problems = append(problems, fmt.Sprintf("llm.default_model '%s' not found in provided models", defaultModel))
	}
	return problems
}
