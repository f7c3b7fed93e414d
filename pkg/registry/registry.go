// pkg/registry/registry.go
package registry

import (
	"fmt"
	"sort"
)

// Registry resolves message templates by alert type and role.
type Registry struct {
	version   string
	templates map[string]Template
}

func key(alertType, role string) string {
	return alertType + "/" + role
}

// Defaults returns the built-in catalogue.
func Defaults() *Registry {
	r := &Registry{version: "builtin", templates: make(map[string]Template)}
	for _, t := range builtin {
		r.templates[key(t.AlertType, t.Role)] = t
	}
	return r
}

// LoadRegistry reads a JSON catalogue from path and layers it over the
// built-in defaults. An empty path yields the defaults.
func LoadRegistry(path string) (*Registry, error) {
	reg := Defaults()
	if path == "" {
		return reg, nil
	}

	file, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	for i, t := range file.Templates {
		if t.AlertType == "" || t.Role == "" || t.Body == "" {
			return nil, fmt.Errorf("template %d (%s): alertType, role and body are required", i, t.ID)
		}
		reg.templates[key(t.AlertType, t.Role)] = t
	}
	if file.Version != "" {
		reg.version = file.Version
	}
	return reg, nil
}

// Lookup returns the template for (alertType, role).
func (r *Registry) Lookup(alertType, role string) (Template, bool) {
	t, ok := r.templates[key(alertType, role)]
	return t, ok
}

// Body returns the template body for (alertType, role), falling back to the
// customer template of the same type.
func (r *Registry) Body(alertType, role string) (string, error) {
	if t, ok := r.Lookup(alertType, role); ok {
		return t.Body, nil
	}
	if t, ok := r.Lookup(alertType, "CUSTOMER"); ok {
		return t.Body, nil
	}
	return "", fmt.Errorf("no template for %s/%s", alertType, role)
}

func (r *Registry) Version() string {
	return r.version
}

// Templates lists the catalogue ordered by type then role.
func (r *Registry) Templates() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return key(out[i].AlertType, out[i].Role) < key(out[j].AlertType, out[j].Role)
	})
	return out
}

var builtin = []Template{
	{
		ID: "pre-alert-customer", AlertType: "PRE_ALERT", Role: "CUSTOMER",
		Body:         "Hello {{customerName}}, a reminder that {{amount}} is due on {{dueDate}} ({{daysUntilDue}} days).",
		Placeholders: []string{"customerName", "amount", "dueDate", "daysUntilDue"},
	},
	{
		ID: "due-customer", AlertType: "DUE", Role: "CUSTOMER",
		Body:         "Hello {{customerName}}, your payment of {{amount}} is due today ({{dueDate}}).",
		Placeholders: []string{"customerName", "amount", "dueDate"},
	},
	{
		ID: "due-manager", AlertType: "DUE", Role: "MANAGER",
		Body:         "{{customerName}} ({{billableEntityId}}) owes {{amount}} due today ({{dueDate}}).",
		Placeholders: []string{"customerName", "billableEntityId", "amount", "dueDate"},
	},
	{
		ID: "overdue-customer", AlertType: "OVERDUE", Role: "CUSTOMER",
		Body:         "Hello {{customerName}}, your payment of {{amount}} due {{dueDate}} is {{daysOverdue}} days overdue.",
		Placeholders: []string{"customerName", "amount", "dueDate", "daysOverdue"},
	},
	{
		ID: "escalation-customer", AlertType: "ESCALATION", Role: "CUSTOMER",
		Body:         "Hello {{customerName}}, {{amount}} due {{dueDate}} remains unpaid after {{daysOverdue}} days. Please settle it as soon as possible.",
		Placeholders: []string{"customerName", "amount", "dueDate", "daysOverdue"},
	},
	{
		ID: "escalation-manager", AlertType: "ESCALATION", Role: "MANAGER",
		Body:         "Escalation: {{customerName}} ({{billableEntityId}}) is {{daysOverdue}} days overdue on {{amount}} due {{dueDate}}.",
		Placeholders: []string{"customerName", "billableEntityId", "amount", "dueDate", "daysOverdue"},
	},
}
