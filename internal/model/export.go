package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// ExportDataType names an exportable CRM collection.
type ExportDataType string

const (
	ExportCustomers    ExportDataType = "customers"
	ExportYachts       ExportDataType = "yachts"
	ExportVehicles     ExportDataType = "vehicles"
	ExportInvoices     ExportDataType = "invoices"
	ExportQuotes       ExportDataType = "quotes"
	ExportPayments     ExportDataType = "payments"
	ExportParts        ExportDataType = "parts"
	ExportServices     ExportDataType = "services"
	ExportAppointments ExportDataType = "appointments"
)

// ExportFormat is the requested file format.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

const (
	ExportSuccessMessage      = "Export completed successfully"
	exportFailurePrefix       = "Export failed: "
	exportFileDateLayout      = "2006-01-02"
	exportQueryParameterType  = "type"
	exportQueryParameterFmt   = "format"
	exportQueryParameterFrom  = "date_from"
	exportQueryParameterUntil = "date_to"
)

var (
	// ErrInvalidExportFormat indicates an unknown export format.
	ErrInvalidExportFormat = errors.New("model: invalid export format")
	// ErrInvalidExportDate indicates a date bound that is not YYYY-MM-DD.
	ErrInvalidExportDate = errors.New("model: invalid export date")
)

var exportDataTypeOrder = []ExportDataType{
	ExportCustomers,
	ExportYachts,
	ExportVehicles,
	ExportInvoices,
	ExportQuotes,
	ExportPayments,
	ExportParts,
	ExportServices,
	ExportAppointments,
}

// ExportRequest holds the parameters of one export submission.
type ExportRequest struct {
	DataType ExportDataType `json:"data_type" form:"data_type"`
	Format   ExportFormat   `json:"format" form:"format"`
	DateFrom string         `json:"date_from" form:"date_from"`
	DateTo   string         `json:"date_to" form:"date_to"`
}

// ExportOption is one selectable data type.
type ExportOption struct {
	Value    ExportDataType `json:"value"`
	Label    string         `json:"label"`
	Selected bool           `json:"selected"`
}

// ExportView is the view model of the export form.
type ExportView struct {
	Options        []ExportOption `json:"options"`
	Request        ExportRequest  `json:"request"`
	SubmitLabel    string         `json:"submit_label"`
	SuccessMessage string         `json:"success_message,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// NewExportRequest returns the form defaults.
func NewExportRequest() ExportRequest {
	return ExportRequest{DataType: ExportCustomers, Format: ExportFormatCSV}
}

// Normalize trims fields, applies format and data type defaults, and validates
// the date bounds.
func (request ExportRequest) Normalize(labels AssetLabels) (ExportRequest, error) {
	normalized := ExportRequest{
		DataType: ExportDataType(strings.ToLower(strings.TrimSpace(string(request.DataType)))),
		Format:   ExportFormat(strings.ToLower(strings.TrimSpace(string(request.Format)))),
		DateFrom: strings.TrimSpace(request.DateFrom),
		DateTo:   strings.TrimSpace(request.DateTo),
	}
	if normalized.Format == "" {
		normalized.Format = ExportFormatCSV
	}
	if normalized.Format != ExportFormatCSV && normalized.Format != ExportFormatJSON {
		return normalized, fmt.Errorf("%w: %s", ErrInvalidExportFormat, normalized.Format)
	}
	for _, bound := range []string{normalized.DateFrom, normalized.DateTo} {
		if bound == "" {
			continue
		}
		if _, parseErr := time.Parse(exportFileDateLayout, bound); parseErr != nil {
			return normalized, fmt.Errorf("%w: %s", ErrInvalidExportDate, bound)
		}
	}
	normalized.DataType = ResolveExportDataType(normalized.DataType, labels)
	return normalized, nil
}

// Query builds the outbound query. Date bounds are included only when set.
func (request ExportRequest) Query() url.Values {
	query := url.Values{}
	query.Set(exportQueryParameterType, string(request.DataType))
	query.Set(exportQueryParameterFmt, string(request.Format))
	if request.DateFrom != "" {
		query.Set(exportQueryParameterFrom, request.DateFrom)
	}
	if request.DateTo != "" {
		query.Set(exportQueryParameterUntil, request.DateTo)
	}
	return query
}

// FileName returns {type}_export_{YYYY-MM-DD}.{csv|json} for the UTC date of now.
func (request ExportRequest) FileName(now time.Time) string {
	extension := string(ExportFormatCSV)
	if request.Format == ExportFormatJSON {
		extension = string(ExportFormatJSON)
	}
	return fmt.Sprintf("%s_export_%s.%s", request.DataType, now.UTC().Format(exportFileDateLayout), extension)
}

// SubmitLabel renders "Export {Type} as {FORMAT}".
func (request ExportRequest) SubmitLabel() string {
	return fmt.Sprintf("Export %s as %s", capitalize(string(request.DataType)), strings.ToUpper(string(request.Format)))
}

// ResolveExportDataType keeps a selection valid for the enabled modules.
// yachts falls back to vehicles when DMS is on, vehicles falls back to yachts
// when the yacht module is on, and both fall back to customers otherwise.
// Unknown types resolve to customers.
func ResolveExportDataType(selected ExportDataType, labels AssetLabels) ExportDataType {
	switch selected {
	case ExportYachts:
		if labels.YachtEnabled {
			return ExportYachts
		}
		if labels.DMSEnabled {
			return ExportVehicles
		}
		return ExportCustomers
	case ExportVehicles:
		if labels.DMSEnabled {
			return ExportVehicles
		}
		if labels.YachtEnabled {
			return ExportYachts
		}
		return ExportCustomers
	}
	for _, known := range exportDataTypeOrder {
		if known == selected {
			return selected
		}
	}
	return ExportCustomers
}

// ExportOptions lists the selectable data types for the enabled modules.
func ExportOptions(labels AssetLabels, selected ExportDataType) []ExportOption {
	options := make([]ExportOption, 0, len(exportDataTypeOrder))
	for _, dataType := range exportDataTypeOrder {
		if dataType == ExportYachts && !labels.YachtEnabled {
			continue
		}
		if dataType == ExportVehicles && !labels.DMSEnabled {
			continue
		}
		options = append(options, ExportOption{
			Value:    dataType,
			Label:    capitalize(string(dataType)),
			Selected: dataType == selected,
		})
	}
	return options
}

// BuildExportView assembles the export form.
func BuildExportView(request ExportRequest, labels AssetLabels, successMessage string, failure string) ExportView {
	request.DataType = ResolveExportDataType(request.DataType, labels)
	if request.Format == "" {
		request.Format = ExportFormatCSV
	}
	view := ExportView{
		Options:        ExportOptions(labels, request.DataType),
		Request:        request,
		SubmitLabel:    request.SubmitLabel(),
		SuccessMessage: successMessage,
	}
	if failure != "" {
		view.ErrorMessage = exportFailurePrefix + failure
	}
	return view
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
