package bigquery

// SettingsRow is one row of the organization_settings table.
type SettingsRow struct {
	OrganizationID     string `bigquery:"organization_id"`
	BaseCurrency       string `bigquery:"base_currency"`
	DateFormat         string `bigquery:"date_format"`
	DecimalSeparator   string `bigquery:"decimal_separator"`
	ThousandsSeparator string `bigquery:"thousands_separator"`
}
