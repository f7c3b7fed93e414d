// internal/commands/schemas.go
package commands

import (
	v "ar-ledger/internal/common/validation"
	"ar-ledger/internal/models"
)

func actorSchema() map[string]interface{} {
	return v.Object([]string{"kind"}, map[string]interface{}{
		"kind":   v.Enum(string(models.ActorSystem), string(models.ActorManager), string(models.ActorSales)),
		"userId": map[string]interface{}{"type": "string"},
	})
}

func moneySchema() map[string]interface{} {
	return v.Object([]string{"amount", "currency"}, map[string]interface{}{
		"amount":   v.DecimalString(),
		"currency": map[string]interface{}{"type": "string", "pattern": `^[A-Z]{3}$`},
	})
}

func addressSchema() map[string]interface{} {
	return v.Object([]string{"channel", "value"}, map[string]interface{}{
		"channel": v.NonEmptyString(),
		"value":   v.NonEmptyString(),
	})
}

var (
	createSchema = v.MustCompile("create", v.Object(
		[]string{"billableEntityId", "customerName", "amount", "invoiceDate", "dueDate", "actor"},
		map[string]interface{}{
			"id":               map[string]interface{}{"type": "string"},
			"billableEntityId": v.NonEmptyString(),
			"customerName":     v.NonEmptyString(),
			"amount":           moneySchema(),
			"billingDay":       map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 31},
			"customerAddress":  addressSchema(),
			"managerAddress":   addressSchema(),
			"actor":            actorSchema(),
		},
	))

	changeStatusSchema = v.MustCompile("change status", v.Object(
		[]string{"arId", "status", "actor"},
		map[string]interface{}{
			"arId":   v.NonEmptyString(),
			"status": map[string]interface{}{"type": "string"},
			"actor":  actorSchema(),
		},
	))

	followUpSchema = v.MustCompile("log follow-up", v.Object(
		[]string{"arId", "notes", "actor"},
		map[string]interface{}{
			"arId":  v.NonEmptyString(),
			"notes": v.NonEmptyString(),
			"actor": actorSchema(),
		},
	))

	verifyPaymentSchema = v.MustCompile("verify payment", v.Object(
		[]string{"arId", "paidAmount", "paidDate", "actor"},
		map[string]interface{}{
			"arId":       v.NonEmptyString(),
			"paidAmount": moneySchema(),
			"actor":      actorSchema(),
		},
	))

	changeDueDateSchema = v.MustCompile("change due date", v.Object(
		[]string{"arId", "dueDate", "actor"},
		map[string]interface{}{
			"arId":  v.NonEmptyString(),
			"actor": actorSchema(),
		},
	))
)
