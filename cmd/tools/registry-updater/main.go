// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ar-ledger/internal/alerts"
	"ar-ledger/internal/models"
	"ar-ledger/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	previewCmd := flag.NewFlagSet("preview", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, previewCmd} {
		fs.StringVar(&registryPath, "path", "configs/templates.json", "Path to registry file")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Template ID (e.g., due-sales)")
	alertType := addCmd.String("type", "", "Alert type (PRE_ALERT, DUE, OVERDUE, ESCALATION)")
	role := addCmd.String("role", "", "Recipient role (CUSTOMER, MANAGER, SALES)")
	description := addCmd.String("description", "", "Description")
	body := addCmd.String("body", "", "Message body with {{placeholders}}")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Template ID to update")
	field := updateCmd.String("field", "", "Field to update (body, description)")
	value := updateCmd.String("value", "", "New value for the field")

	// Preview command flags
	previewType := previewCmd.String("type", "DUE", "Alert type")
	previewRole := previewCmd.String("role", "CUSTOMER", "Recipient role")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *alertType == "" || *role == "" || *body == "" {
			fmt.Println("Error: id, type, role, and body are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		tmpl := registry.Template{
			ID:           *idAdd,
			AlertType:    strings.ToUpper(*alertType),
			Role:         strings.ToUpper(*role),
			Description:  *description,
			Body:         *body,
			Placeholders: placeholders(*body),
		}
		if err := addTemplate(tmpl); err != nil {
			fmt.Printf("Error adding template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added template: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s\n", *idUpdate, *field)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "preview":
		previewCmd.Parse(os.Args[2:])
		text, err := preview(*previewType, *previewRole)
		if err != nil {
			fmt.Printf("Preview failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(text)

	case "help":
		fallthrough
	default:
		help()
	}
}

func load() (*registry.TemplateRegistry, error) {
	reg, err := registry.ReadFile(registryPath)
	if os.IsNotExist(err) {
		return &registry.TemplateRegistry{Version: "1.0.0"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

func save(reg *registry.TemplateRegistry) error {
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.WriteFile(registryPath, reg)
}

func addTemplate(tmpl registry.Template) error {
	if err := checkTemplate(tmpl); err != nil {
		return err
	}
	reg, err := load()
	if err != nil {
		return err
	}
	for _, existing := range reg.Templates {
		if existing.ID == tmpl.ID {
			return fmt.Errorf("template with ID %s already exists", tmpl.ID)
		}
		if existing.AlertType == tmpl.AlertType && existing.Role == tmpl.Role {
			return fmt.Errorf("template %s already covers %s/%s", existing.ID, tmpl.AlertType, tmpl.Role)
		}
	}
	reg.Templates = append(reg.Templates, tmpl)
	return save(reg)
}

func updateTemplate(id, field, value string) error {
	reg, err := load()
	if err != nil {
		return err
	}

	for i := range reg.Templates {
		if reg.Templates[i].ID != id {
			continue
		}
		switch field {
		case "body":
			reg.Templates[i].Body = value
			reg.Templates[i].Placeholders = placeholders(value)
		case "description":
			reg.Templates[i].Description = value
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		return save(reg)
	}
	return fmt.Errorf("template with ID %s not found", id)
}

func validateRegistry() error {
	reg, err := registry.ReadFile(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if len(reg.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}

	ids := make(map[string]bool)
	pairs := make(map[string]string)
	for _, tmpl := range reg.Templates {
		if tmpl.ID == "" {
			return fmt.Errorf("template missing required field: ID")
		}
		if ids[tmpl.ID] {
			return fmt.Errorf("duplicate template ID: %s", tmpl.ID)
		}
		ids[tmpl.ID] = true

		pair := tmpl.AlertType + "/" + tmpl.Role
		if other, ok := pairs[pair]; ok {
			return fmt.Errorf("templates %s and %s both cover %s", other, tmpl.ID, pair)
		}
		pairs[pair] = tmpl.ID

		if err := checkTemplate(tmpl); err != nil {
			return err
		}
	}

	fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))
	return nil
}

func checkTemplate(tmpl registry.Template) error {
	if !models.AlertType(tmpl.AlertType).Valid() {
		return fmt.Errorf("template %s: unknown alert type %q", tmpl.ID, tmpl.AlertType)
	}
	if !models.Role(tmpl.Role).Valid() {
		return fmt.Errorf("template %s: unknown role %q", tmpl.ID, tmpl.Role)
	}
	if strings.TrimSpace(tmpl.Body) == "" {
		return fmt.Errorf("template %s missing required field: Body", tmpl.ID)
	}
	return nil
}

// preview renders the resolved template against a sample receivable.
func preview(alertType, role string) (string, error) {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return "", err
	}
	body, err := reg.Body(strings.ToUpper(alertType), strings.ToUpper(role))
	if err != nil {
		return "", err
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	sample := &models.AR{
		ID:               "sample",
		BillableEntityID: "house-42",
		CustomerName:     "Acme Holdings",
		Zone:             "north",
		Amount:           models.MustMoney("1250", "USD"),
		InvoiceDate:      today.AddDate(0, 0, -25),
		DueDate:          today.AddDate(0, 0, 5),
	}
	return alerts.Render(body, alerts.MessageData(sample, today)), nil
}

func placeholders(body string) []string {
	var out []string
	seen := map[string]bool{}
	for rest := body; ; {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(rest[start+2 : start+end])
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		rest = rest[start+end+2:]
	}
	return out
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a message template to the registry
  update   Update an existing template's body or description
  validate Validate the registry file
  preview  Render the resolved template for a type and role against sample data
  help     Show this help message

Examples:
  registry-updater add -id due-sales -type DUE -role SALES -body "{{customerName}} owes {{amount}} today"
  registry-updater update -id due-sales -field body -value "{{customerName}}: {{amount}} due {{dueDate}}"
  registry-updater validate -path configs/templates.json
  registry-updater preview -type ESCALATION -role MANAGER

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
