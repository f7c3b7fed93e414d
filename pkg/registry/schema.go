// pkg/registry/schema.go
package registry

// TemplateRegistry is the on-disk shape of the message template catalogue.
type TemplateRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Templates   []Template `json:"templates"`
}

// Template is the message body used for one (alert type, role) pair.
// Placeholders are written {{key}}.
type Template struct {
	ID           string   `json:"id"`
	AlertType    string   `json:"alertType"`
	Role         string   `json:"role"`
	Description  string   `json:"description,omitempty"`
	Body         string   `json:"body"`
	Placeholders []string `json:"placeholders,omitempty"`
}
