// Package render produces the printable HTML document of an invoice.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/format"
	"github.com/shopspring/decimal"
)

// Renderer turns an invoice into a standalone HTML page.
type Renderer interface {
	RenderHTML(doc Document) (string, error)
}

// Party is the issuer printed in the invoice header.
type Party struct {
	Name      string
	Email     string
	Address   map[string]any
	VATNumber *string
}

type Document struct {
	Invoice *domain.Invoice
	Issuer  Party
}

const invoiceHTMLTemplate = `<!doctype html>
<html lang="de">
<head>
  <meta charset="utf-8" />
  <title>Rechnung {{.Invoice.Number}}</title>
  <style>
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
      color: #1a1f36;
      background: #f7f9fc;
    }
    .invoice-card {
      background: #ffffff;
      max-width: 760px;
      margin: 0 auto;
      padding: 60px;
      border-radius: 4px;
    }
    .header { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .header h1 { margin: 0; font-size: 24px; }
    .meta-grid { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .col { flex: 1; }
    .label {
      font-size: 11px;
      text-transform: uppercase;
      color: #8792a2;
      margin-bottom: 6px;
      font-weight: 600;
    }
    .value { font-size: 14px; line-height: 1.5; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
    th {
      text-align: left;
      font-size: 11px;
      color: #8792a2;
      border-bottom: 1px solid #e3e8ee;
      padding: 10px 0;
    }
    td { padding: 12px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; }
    .td-right { text-align: right; }
    .totals { display: flex; flex-direction: column; align-items: flex-end; }
    .total-row { display: flex; justify-content: space-between; width: 280px; padding: 6px 0; font-size: 14px; }
    .total-final { border-top: 1px solid #e3e8ee; margin-top: 10px; padding-top: 10px; font-weight: 700; }
    .status { color: #b42318; font-weight: 700; }
    .footer { margin-top: 48px; font-size: 12px; color: #697386; border-top: 1px solid #e3e8ee; padding-top: 20px; }
  </style>
</head>
<body>
  <div class="invoice-card">
    <div class="header">
      <div>
        <h1>Rechnung</h1>
        <div class="label" style="margin-top: 12px;">Rechnungsnummer</div>
        <div class="value">{{.Invoice.Number}}</div>
        {{if eq .Invoice.Status "cancelled"}}<div class="status">{{.Invoice.Status.Label}}</div>{{end}}
      </div>
      <div class="value" style="text-align: right;">
        <strong>{{.Issuer.Name}}</strong><br>
        {{range addressLines .Issuer.Address}}{{.}}<br>{{end}}
        {{.Issuer.Email}}
        {{if .Issuer.VATNumber}}<br>USt-IdNr.: {{.Issuer.VATNumber}}{{end}}
      </div>
    </div>

    <div class="meta-grid">
      <div class="col">
        <div class="label">Rechnungsempfänger</div>
        <div class="value">
          <strong>{{.Invoice.BillingName}}</strong><br>
          {{range addressLines .Invoice.BillingAddress}}{{.}}<br>{{end}}
          {{.Invoice.BillingEmail}}
          {{if .Invoice.VATNumber}}<br>USt-IdNr.: {{.Invoice.VATNumber}}{{end}}
        </div>
      </div>
      <div class="col" style="flex: 0 0 220px;">
        <div class="label">Rechnungsdatum</div>
        <div class="value">{{formatDate .Invoice.IssueDate}}</div>
        <div class="label" style="margin-top: 16px;">Fällig am</div>
        <div class="value">{{formatDate .Invoice.DueDate}}</div>
        {{if .Invoice.BillingPeriod}}
        <div class="label" style="margin-top: 16px;">Leistungszeitraum</div>
        <div class="value">{{.Invoice.BillingPeriod}}</div>
        {{end}}
      </div>
    </div>

    <table>
      <thead>
        <tr>
          <th style="width: 55%;">Beschreibung</th>
          <th class="td-right">Menge</th>
          <th class="td-right">Einzelpreis</th>
          <th class="td-right">Betrag</th>
        </tr>
      </thead>
      <tbody>
        {{range .Invoice.LineItems}}
        <tr>
          <td>{{.Description}}</td>
          <td class="td-right">{{.Quantity}}</td>
          <td class="td-right">{{formatMoney .UnitPrice $.Invoice.Currency}}</td>
          <td class="td-right">{{formatMoney .Total $.Invoice.Currency}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="totals">
      <div class="total-row">
        <span>Nettobetrag</span>
        <span>{{formatMoney .Invoice.NetAmount .Invoice.Currency}}</span>
      </div>
      {{if not .Invoice.IsSmallBusiness}}
      <div class="total-row">
        <span>USt. {{formatRate .Invoice.TaxRate}} %</span>
        <span>{{formatMoney .Invoice.TaxAmount .Invoice.Currency}}</span>
      </div>
      {{end}}
      <div class="total-row total-final">
        <span>Gesamtbetrag</span>
        <span>{{formatMoney .Invoice.GrossAmount .Invoice.Currency}}</span>
      </div>
    </div>

    <div class="footer">
      {{if .Invoice.IsSmallBusiness}}Gemäß § 19 UStG wird keine Umsatzsteuer berechnet.<br><br>{{end}}
      Bitte überweisen Sie den Betrag bis zum {{formatDate .Invoice.DueDate}} unter Angabe des
      Verwendungszwecks <strong>{{.Invoice.Reference}}</strong>.
    </div>
  </div>
</body>
</html>
`

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatMoney":  format.Money,
		"formatDate":   formatDate,
		"formatRate":   formatRate,
		"addressLines": addressLines,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTMLTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(doc Document) (string, error) {
	if doc.Invoice == nil {
		return "", domain.ErrNotFound
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return format.Date(value)
}

func formatRate(rate decimal.Decimal) string {
	return strings.Replace(rate.StringFixed(0), ".", ",", 1)
}

// addressLines prints the well-known address keys first, then any others in
// key order.
func addressLines(address map[string]any) []string {
	if len(address) == 0 {
		return nil
	}
	known := []string{"street", "address_line_1", "address_line_2", "postal_code", "city", "country"}
	seen := map[string]bool{}
	var lines []string

	postal, city := stringValue(address["postal_code"]), stringValue(address["city"])
	for _, key := range known {
		seen[key] = true
		switch key {
		case "postal_code":
			continue
		case "city":
			if line := strings.TrimSpace(postal + " " + city); line != "" {
				lines = append(lines, line)
			}
			continue
		}
		if value := stringValue(address[key]); value != "" {
			lines = append(lines, value)
		}
	}

	var rest []string
	for key := range address {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if value := stringValue(address[key]); value != "" {
			lines = append(lines, value)
		}
	}
	return lines
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
