package view

import (
	"strings"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/catalog"
)

// NavItem is a sidebar link.
type NavItem struct {
	Label  string
	Path   string
	Active bool
}

// Navigation lists the sections a principal may open.
type Navigation struct {
	rules   access.Rules
	entries []NavItem
}

// NewNavigation builds the sidebar from the catalog. Links the principal's
// role is not permitted to open are hidden.
func NewNavigation(cat *catalog.Catalog, rules access.Rules) *Navigation {
	entries := []NavItem{{Label: "Inicio", Path: "/dashboard"}}
	for _, e := range cat.All() {
		entries = append(entries, NavItem{Label: e.Title, Path: e.Path()})
	}
	entries = append(entries,
		NavItem{Label: "Cumplimiento", Path: "/cumplimiento"},
		NavItem{Label: "Usuarios", Path: "/usuarios"},
		NavItem{Label: "Permisos", Path: "/permisos"},
		NavItem{Label: "Administración", Path: "/admin"},
	)
	return &Navigation{rules: rules.Clone(), entries: entries}
}

// Items implements Navigator.
func (n *Navigation) Items(p access.Principal, currentPath string) []NavItem {
	out := make([]NavItem, 0, len(n.entries))
	for _, item := range n.entries {
		if !n.rules.Permits(p.Role, item.Path) {
			continue
		}
		item.Active = currentPath == item.Path || strings.HasPrefix(currentPath, item.Path+"/")
		out = append(out, item)
	}
	return out
}

// All returns every section regardless of role.
func (n *Navigation) All() []NavItem {
	out := make([]NavItem, len(n.entries))
	copy(out, n.entries)
	return out
}
