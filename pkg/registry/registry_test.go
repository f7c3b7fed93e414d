package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_CoverEveryAlertType(t *testing.T) {
	reg := Defaults()

	for _, alertType := range []string{"PRE_ALERT", "DUE", "OVERDUE", "ESCALATION"} {
		body, err := reg.Body(alertType, "CUSTOMER")
		require.NoError(t, err, alertType)
		assert.Contains(t, body, "{{amount}}")
	}
}

func TestBody_FallsBackToCustomerTemplate(t *testing.T) {
	reg := Defaults()

	overdueManager, err := reg.Body("OVERDUE", "MANAGER")
	require.NoError(t, err)
	overdueCustomer, err := reg.Body("OVERDUE", "CUSTOMER")
	require.NoError(t, err)
	assert.Equal(t, overdueCustomer, overdueManager)

	_, err = reg.Body("UNKNOWN", "CUSTOMER")
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, reg *Registry)
	}{
		{
			name: "overrides a builtin and keeps the rest",
			body: `{"version":"2025.1","templates":[{"id":"due-c","alertType":"DUE","role":"CUSTOMER","body":"Pay {{amount}} today"}]}`,
			check: func(t *testing.T, reg *Registry) {
				body, err := reg.Body("DUE", "CUSTOMER")
				require.NoError(t, err)
				assert.Equal(t, "Pay {{amount}} today", body)
				assert.Equal(t, "2025.1", reg.Version())

				_, ok := reg.Lookup("ESCALATION", "MANAGER")
				assert.True(t, ok)
			},
		},
		{
			name:    "missing body",
			body:    `{"templates":[{"id":"x","alertType":"DUE","role":"CUSTOMER"}]}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			body:    `{"templates":[`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := LoadRegistry(writeRegistry(t, tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, reg)
		})
	}
}

func TestLoadRegistry_EmptyPathAndMissingFile(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Equal(t, "builtin", reg.Version())
	assert.Len(t, reg.Templates(), len(builtin))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "templates.json")
	in := &TemplateRegistry{
		Version: "2",
		Templates: []Template{
			{ID: "due-sales", AlertType: "DUE", Role: "SALES", Body: "{{customerName}} is due today"},
		},
	}
	require.NoError(t, WriteFile(path, in))

	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	body, err := reg.Body("DUE", "SALES")
	require.NoError(t, err)
	assert.Equal(t, "{{customerName}} is due today", body)
}
