package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmailTemplateDefaults(testingT *testing.T) {
	var templates []EmailTemplate
	require.NoError(testingT, json.Unmarshal([]byte(`[
		{"id": 3, "type": "invoice_due", "subject": "Invoice Due", "body": null},
		{"id": 4, "type": "quote_sent", "subject": "Your quote", "body": "Hi", "active": false}
	]`), &templates))

	require.True(testingT, templates[0].IsActive())
	require.Equal(testingT, "", templates[0].BodyText())
	require.Equal(testingT, "No", templates[0].ActiveLabel())
	require.False(testingT, templates[1].IsActive())
	require.Equal(testingT, "No", templates[1].ActiveLabel())

	active := true
	require.Equal(testingT, "Yes", EmailTemplate{Active: &active}.ActiveLabel())
}

func TestBuildEmailTemplatesViewOpensEditor(testingT *testing.T) {
	inactive := false
	body := "Hi {{customer_name}}"
	templates := []EmailTemplate{
		{ID: "3", Type: "invoice_due", Subject: "Invoice Due", Body: &body, Active: &inactive},
		{ID: "4", Type: "quote_sent", Subject: "Quote"},
	}

	view := BuildEmailTemplatesView(templates, "3")

	require.Len(testingT, view.Rows, 2)
	require.Equal(testingT, EmailTemplateRow{ID: "3", Type: "invoice_due", Subject: "Invoice Due", Active: "No"}, view.Rows[0])
	require.Equal(testingT, EmailTemplateRow{ID: "4", Type: "quote_sent", Subject: "Quote", Active: "No"}, view.Rows[1])
	require.NotNil(testingT, view.Editor)
	require.Equal(testingT, "Edit Email Template: invoice_due", view.Editor.Title)
	require.Equal(testingT, TemplateUpdate{Subject: "Invoice Due", Body: body, Active: false}, view.Editor.Form)
	require.Equal(testingT, PlaceholderHelpText, view.HelpText)

	require.Nil(testingT, BuildEmailTemplatesView(templates, "99").Editor)
	require.Nil(testingT, BuildEmailTemplatesView(templates, "").Editor)
}

func TestTemplateUpdateEncodesExactFields(testingT *testing.T) {
	encoded, marshalErr := json.Marshal(TemplateUpdate{Subject: "Invoice Due", Body: "Hi {{customer_name}}", Active: false})
	require.NoError(testingT, marshalErr)
	require.JSONEq(testingT, `{"subject":"Invoice Due","body":"Hi {{customer_name}}","active":false}`, string(encoded))
}
