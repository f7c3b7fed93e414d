package alerts

import (
	"strconv"
	"strings"
	"time"

	"ar-ledger/internal/common/dates"
	"ar-ledger/internal/models"
)

// Render substitutes {{key}} placeholders from data. Placeholders without a
// value are removed.
func Render(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

// MessageData is the substitution map every alert about ar carries.
func MessageData(ar *models.AR, today time.Time) map[string]string {
	data := map[string]string{
		"arId":             ar.ID,
		"billableEntityId": ar.BillableEntityID,
		"customerName":     ar.CustomerName,
		"zone":             ar.Zone,
		"amount":           ar.Amount.String(),
		"invoiceDate":      dates.Format(ar.InvoiceDate),
		"dueDate":          dates.Format(ar.DueDate),
	}
	if d := dates.DaysBetween(ar.DueDate, today); d > 0 {
		data["daysOverdue"] = strconv.Itoa(d)
	} else {
		data["daysUntilDue"] = strconv.Itoa(-d)
	}
	return data
}
