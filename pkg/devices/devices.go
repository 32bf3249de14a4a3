// Package devices declares the agent-facing tools of the city devices: the
// vending machine, the ePalette delivery cart and the city database.
package devices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// Names of the tool sets that can be enabled.
const (
	SetVending  = "vending"
	SetEPalette = "epalette"
	SetCityDB   = "citydb"
)

// Sets lists every known tool set.
func Sets() []string { return []string{SetVending, SetEPalette, SetCityDB} }

// Tool is a definition together with the handler and formatter serving it.
type Tool struct {
	Definition tool.Definition
	Handler    tool.Handler
	Format     tool.Formatter
}

// Register adds tools to reg in order.
func Register(reg *tool.Registry, tools ...Tool) error {
	for _, t := range tools {
		var opts []tool.Option
		if t.Format != nil {
			opts = append(opts, tool.WithFormatter(t.Format))
		}
		if err := reg.Register(t.Definition, t.Handler, opts...); err != nil {
			return err
		}
	}
	return nil
}

// ParseSets normalizes a list of set names, accepting comma separated items.
// An empty list selects every set.
func ParseSets(items []string) ([]string, error) {
	seen := map[string]bool{}
	for _, it := range items {
		for _, s := range strings.Split(it, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			switch s {
			case SetVending, SetEPalette, SetCityDB:
				seen[s] = true
			case "all":
				for _, k := range Sets() {
					seen[k] = true
				}
			default:
				return nil, fmt.Errorf("unknown tool set %q (want one of %s)", s, strings.Join(Sets(), ", "))
			}
		}
	}
	if len(seen) == 0 {
		return Sets(), nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	order := map[string]int{SetVending: 0, SetEPalette: 1, SetCityDB: 2}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out, nil
}
