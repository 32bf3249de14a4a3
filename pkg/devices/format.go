package devices

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ryotayamanaka/mcp-city/pkg/citydb"
)

// maxTableRows bounds how many result rows are rendered as text.
const maxTableRows = 20

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unexpected payload: %w", err)
	}
	return nil
}

type product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Category string  `json:"category"`
}

func formatProducts(payload json.RawMessage) (string, error) {
	var doc struct {
		Products []product `json:"products"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	if len(doc.Products) == 0 {
		return "No products available in the vending machine.", nil
	}
	var b strings.Builder
	b.WriteString("Vending machine products:\n")
	for _, p := range doc.Products {
		fmt.Fprintf(&b, "- %s (id %s): %s, %d in stock, %s\n", p.Name, p.ID, yen(p.Price), p.Stock, p.Category)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatInventory(payload json.RawMessage) (string, error) {
	var doc struct {
		Inventory map[string]product `json:"inventory"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	if len(doc.Inventory) == 0 {
		return "No inventory data available.", nil
	}
	ids := make([]string, 0, len(doc.Inventory))
	total := 0
	for id, it := range doc.Inventory {
		ids = append(ids, id)
		total += it.Stock
	}
	sort.Strings(ids)

	var low, out []string
	for _, id := range ids {
		it := doc.Inventory[id]
		switch {
		case it.Stock == 0:
			out = append(out, it.Name)
		case it.Stock <= LowStockThreshold:
			low = append(low, fmt.Sprintf("%s: %d left", it.Name, it.Stock))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Inventory: %d items across %d products.\n", total, len(ids))
	if len(low) > 0 {
		fmt.Fprintf(&b, "Low stock: %s.\n", strings.Join(low, "; "))
	}
	if len(out) > 0 {
		fmt.Fprintf(&b, "Out of stock: %s.\n", strings.Join(out, ", "))
	}
	for _, id := range ids {
		it := doc.Inventory[id]
		status := "ok"
		if it.Stock == 0 {
			status = "out"
		} else if it.Stock <= LowStockThreshold {
			status = "low"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s): %d\n", status, it.Name, it.Category, it.Stock)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatPurchase(payload json.RawMessage) (string, error) {
	var doc struct {
		Success        bool    `json:"success"`
		Message        string  `json:"message"`
		TransactionID  string  `json:"transaction_id"`
		Product        product `json:"product"`
		Quantity       int     `json:"quantity"`
		TotalPrice     float64 `json:"total_price"`
		PaymentMethod  string  `json:"payment_method"`
		RemainingStock *int    `json:"remaining_stock"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	if !doc.Success {
		return "Purchase failed: " + orDefault(doc.Message, "unknown reason"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Purchased %d x %s for %s", doc.Quantity, orDefault(doc.Product.Name, "unknown product"), yen(doc.TotalPrice))
	if doc.PaymentMethod != "" {
		fmt.Fprintf(&b, " (paid by %s)", doc.PaymentMethod)
	}
	b.WriteString(".")
	if doc.TransactionID != "" {
		fmt.Fprintf(&b, " Transaction %s.", doc.TransactionID)
	}
	if doc.RemainingStock != nil {
		fmt.Fprintf(&b, " %d left in stock.", *doc.RemainingStock)
	}
	return b.String(), nil
}

type salesPeriod struct {
	TotalRevenue      float64 `json:"total_revenue"`
	TotalTransactions int     `json:"total_transactions"`
	PopularItems      []struct {
		Name       string `json:"name"`
		SalesCount int    `json:"sales_count"`
	} `json:"popular_items"`
}

func formatSales(payload json.RawMessage) (string, error) {
	var doc struct {
		Daily   *salesPeriod `json:"daily_sales"`
		Weekly  *salesPeriod `json:"weekly_sales"`
		Monthly *salesPeriod `json:"monthly_sales"`
		Hourly  []struct {
			Hour         int `json:"hour"`
			Transactions int `json:"transactions"`
		} `json:"hourly_trends"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Vending machine sales:\n")
	period := func(label string, p *salesPeriod) {
		if p == nil {
			return
		}
		fmt.Fprintf(&b, "%s: %s revenue, %d transactions\n", label, yen(p.TotalRevenue), p.TotalTransactions)
		for i, it := range p.PopularItems {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "  - %s: %d sold\n", it.Name, it.SalesCount)
		}
	}
	period("Today", doc.Daily)
	period("This week", doc.Weekly)
	period("This month", doc.Monthly)
	if len(doc.Hourly) > 0 {
		parts := make([]string, len(doc.Hourly))
		for i, h := range doc.Hourly {
			parts[i] = fmt.Sprintf("%02d:00 %d", h.Hour, h.Transactions)
		}
		fmt.Fprintf(&b, "Hourly transactions: %s\n", strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatAnalytics(payload json.RawMessage) (string, error) {
	var doc struct {
		Performance map[string]any `json:"performance"`
		Maintenance struct {
			LastService string `json:"last_service"`
			NextService string `json:"next_service"`
			Alerts      []any  `json:"alerts"`
		} `json:"maintenance"`
		Revenue struct {
			Weekly     float64 `json:"weekly"`
			Monthly    float64 `json:"monthly"`
			YearToDate float64 `json:"year_to_date"`
		} `json:"revenue"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Vending machine analytics:\n")
	if len(doc.Performance) > 0 {
		keys := make([]string, 0, len(doc.Performance))
		for k := range doc.Performance {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s %v", strings.ReplaceAll(k, "_", " "), doc.Performance[k])
		}
		fmt.Fprintf(&b, "Performance: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "Revenue: %s this week, %s this month, %s year to date\n",
		yen(doc.Revenue.Weekly), yen(doc.Revenue.Monthly), yen(doc.Revenue.YearToDate))
	if doc.Maintenance.LastService != "" || doc.Maintenance.NextService != "" {
		fmt.Fprintf(&b, "Maintenance: last %s, next %s, %d alerts\n",
			orDefault(doc.Maintenance.LastService, "n/a"), orDefault(doc.Maintenance.NextService, "n/a"), len(doc.Maintenance.Alerts))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type displayState struct {
	Text       *string `json:"text"`
	Subtext    *string `json:"subtext"`
	ImageURL   *string `json:"imageUrl"`
	LastUpdate *string `json:"lastUpdate"`
	Status     *string `json:"status"`
}

func (d displayState) write(b *strings.Builder, indent string) {
	if d.ImageURL != nil && *d.ImageURL != "" {
		fmt.Fprintf(b, "%sImage: %s\n", indent, *d.ImageURL)
	} else {
		fmt.Fprintf(b, "%sText: %s\n", indent, str(d.Text))
		fmt.Fprintf(b, "%sSubtext: %s\n", indent, str(d.Subtext))
	}
	fmt.Fprintf(b, "%sStatus: %s\n", indent, str(d.Status))
	fmt.Fprintf(b, "%sLast update: %s\n", indent, str(d.LastUpdate))
}

func formatEPaletteStatus(payload json.RawMessage) (string, error) {
	var doc struct {
		Display displayState `json:"display"`
		Vehicle struct {
			Location *string  `json:"location"`
			Speed    *float64 `json:"speed"`
			Paused   bool     `json:"paused"`
			View     *string  `json:"view"`
		} `json:"vehicle"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("ePalette status\nDisplay:\n")
	doc.Display.write(&b, "  ")
	b.WriteString("Vehicle:\n")
	fmt.Fprintf(&b, "  Location: %s\n", str(doc.Vehicle.Location))
	fmt.Fprintf(&b, "  Speed: %s km/h\n", num(doc.Vehicle.Speed))
	fmt.Fprintf(&b, "  Paused: %s\n", yesNo(doc.Vehicle.Paused))
	if doc.Vehicle.View != nil {
		fmt.Fprintf(&b, "  View: %s\n", *doc.Vehicle.View)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatDisplayStatus(payload json.RawMessage) (string, error) {
	var doc struct {
		displayState
		Brightness *float64 `json:"brightness"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("ePalette display\n")
	doc.displayState.write(&b, "")
	if doc.Brightness != nil {
		fmt.Fprintf(&b, "Brightness: %s%%\n", num(doc.Brightness))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// formatDisplayUpdate renders the acknowledgement of a display change.
func formatDisplayUpdate(payload json.RawMessage) (string, error) {
	var doc struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	if !doc.Success {
		return "Display update failed: " + orDefault(doc.Message, "unknown reason"), nil
	}
	msg := orDefault(doc.Message, "Display updated")
	if doc.Timestamp != "" {
		msg += " (at " + doc.Timestamp + ")"
	}
	return msg, nil
}

func formatControl(payload json.RawMessage) (string, error) {
	var doc struct {
		Success bool   `json:"success"`
		Action  string `json:"action"`
		Message string `json:"message"`
		Data    struct {
			Speed    *float64 `json:"speed"`
			Paused   bool     `json:"paused"`
			Location *string  `json:"location"`
		} `json:"data"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	if !doc.Success {
		return "Vehicle control failed: " + orDefault(doc.Message, "unknown reason"), nil
	}
	return fmt.Sprintf("%s. Location: %s, speed %s km/h, paused: %s.",
		orDefault(doc.Message, "Vehicle "+doc.Action),
		str(doc.Data.Location), num(doc.Data.Speed), yesNo(doc.Data.Paused)), nil
}

func formatTable(payload json.RawMessage) (string, error) {
	var t citydb.Table
	if err := decode(payload, &t); err != nil {
		return "", err
	}
	if t.RowCount == 0 {
		return "Query returned no rows.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows", t.RowCount)
	if t.Truncated {
		b.WriteString(" (result truncated)")
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(t.Columns, " | "))
	b.WriteString("\n")
	for i, row := range t.Rows {
		if i == maxTableRows {
			fmt.Fprintf(&b, "... %d more rows\n", t.RowCount-maxTableRows)
			break
		}
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = cell(row[c])
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatTableInfo(payload json.RawMessage) (string, error) {
	var doc struct {
		Tables []citydb.TableInfo `json:"tables"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("City database tables:\n")
	for _, t := range doc.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name + " " + c.Type
		}
		fmt.Fprintf(&b, "- %s (%d rows): %s\n", t.Name, t.RowCount, strings.Join(cols, ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatConnection(payload json.RawMessage) (string, error) {
	var doc struct {
		Status  string `json:"status"`
		Dialect string `json:"dialect"`
	}
	if err := decode(payload, &doc); err != nil {
		return "", err
	}
	return fmt.Sprintf("Database connection %s (%s).", doc.Status, doc.Dialect), nil
}

// yen formats an amount with thousands separators.
func yen(v float64) string {
	s := strconv.FormatInt(int64(v), 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-¥" + b.String()
	}
	return "¥" + b.String()
}

func str(s *string) string {
	if s == nil || *s == "" {
		return "n/a"
	}
	return *s
}

func num(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
