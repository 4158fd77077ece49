package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/tools"
)

// ListModels prints the routing table, one model per line.
func ListModels(w io.Writer, routes llm.RoutingTable, defaultModel string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPROVIDER\tPROTOCOL\tENDPOINT")
	for _, m := range routes.Models() {
		route, err := routes.Resolve(m)
		if err != nil {
			continue
		}
		name := m
		if m == defaultModel {
			name += " *"
		}
		p := routes.Providers[route.Provider]
		endpoint := p.BaseURL
		if endpoint == "" {
			endpoint = "(default)"
		}
		if p.Local {
			endpoint += " [local]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, route.Provider, p.Protocol, endpoint)
	}
	if routes.Fallback != "" {
		fmt.Fprintf(tw, "*other*\t%s\t\t(fallback)\n", routes.Fallback)
	}
	return tw.Flush()
}

// ListTools prints available tools. With schema set, the JSON tool
// definitions are printed instead.
func ListTools(w io.Writer, registry *tools.Registry, schema bool) error {
	if schema {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(registry.Definitions())
	}

	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)
	for _, meta := range registry.List() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)
		fmt.Fprintln(w)
	}
	return nil
}
