package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/service"
)

func salesOrderDoc() *model.Document {
	return &model.Document{
		Doctype: "Sales Order",
		Name:    "SO-2025-00042",
		Fields: map[string]any{
			"docstatus":      1,
			"grand_total":    1500.50,
			"currency":       "KES",
			"contact_mobile": "0712345678",
			"customer_name":  "Alice Smith",
			"status":         "To Deliver",
			"notes":          "",
		},
	}
}

func TestConditionEmptyAlwaysTrue(t *testing.T) {
	cond, err := service.CompileCondition("")
	require.NoError(t, err)

	ok, err := cond.Eval(salesOrderDoc())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionComparisons(t *testing.T) {
	doc := salesOrderDoc()

	cases := []struct {
		expr string
		want bool
	}{
		{"doc.docstatus == 1", true},
		{"doc.docstatus == 0", false},
		{"doc.grand_total > 1000", true},
		{"doc.grand_total >= 1500.50", true},
		{"doc.grand_total < 100", false},
		{"doc.currency == 'KES'", true},
		{"doc.currency != 'USD'", true},
		{"doc.status == 'To Deliver'", true},
		// numeric comparison applies when both sides coerce
		{"docstatus >= 1", true},
	}

	for _, tc := range cases {
		cond, err := service.CompileCondition(tc.expr)
		require.NoError(t, err, tc.expr)

		got, err := cond.Eval(doc)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestConditionBooleanCombinators(t *testing.T) {
	doc := salesOrderDoc()

	cases := []struct {
		expr string
		want bool
	}{
		{"doc.docstatus == 1 and doc.contact_mobile", true},
		{"doc.docstatus == 0 or doc.grand_total > 1000", true},
		{"doc.docstatus == 0 and doc.grand_total > 1000", false},
		{"not doc.docstatus == 0", true},
		{"doc.docstatus == 1 && doc.currency == 'KES'", true},
		{"doc.docstatus == 0 || doc.currency == 'USD'", false},
		{"!(doc.docstatus == 1)", false},
		{"(doc.docstatus == 1 or doc.docstatus == 2) and doc.contact_mobile", true},
	}

	for _, tc := range cases {
		cond, err := service.CompileCondition(tc.expr)
		require.NoError(t, err, tc.expr)

		got, err := cond.Eval(doc)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestConditionIsSet(t *testing.T) {
	doc := salesOrderDoc()

	cases := []struct {
		expr string
		want bool
	}{
		{"doc.contact_mobile is set", true},
		{"doc.notes is set", false},
		{"doc.notes is not set", true},
		{"doc.missing_field is set", false},
	}

	for _, tc := range cases {
		cond, err := service.CompileCondition(tc.expr)
		require.NoError(t, err, tc.expr)

		got, err := cond.Eval(doc)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestConditionBareFieldTruthiness(t *testing.T) {
	doc := salesOrderDoc()

	cond, err := service.CompileCondition("doc.contact_mobile")
	require.NoError(t, err)
	ok, err := cond.Eval(doc)
	require.NoError(t, err)
	assert.True(t, ok)

	cond, err = service.CompileCondition("doc.notes")
	require.NoError(t, err)
	ok, err = cond.Eval(doc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionNameAndDoctypeAddressable(t *testing.T) {
	cond, err := service.CompileCondition("doctype == 'Sales Order' and name is set")
	require.NoError(t, err)

	ok, err := cond.Eval(salesOrderDoc())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionParseErrors(t *testing.T) {
	bad := []string{
		"doc.amount >",
		"(doc.docstatus == 1",
		"doc.status == 'unterminated",
		"doc.amount @ 5",
		"doc.contact_mobile is",
		"and doc.docstatus",
	}

	for _, expr := range bad {
		_, err := service.CompileCondition(expr)
		require.Error(t, err, expr)
		assert.True(t, appErrors.IsValidation(err), expr)
	}
}

func TestConditionNoCodeExecution(t *testing.T) {
	// Call syntax is not part of the grammar.
	_, err := service.CompileCondition("frappe.db.sql('drop table')")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}
