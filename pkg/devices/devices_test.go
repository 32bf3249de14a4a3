package devices

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryotayamanaka/mcp-city/pkg/citydb"
	"github.com/ryotayamanaka/mcp-city/pkg/dispatch"
	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/gateway"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeGateway mimics the device simulator's responses.
type fakeGateway struct {
	mu    sync.Mutex
	calls []recorded
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{Method: r.Method, Path: r.URL.Path}
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &rec.Body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, rec)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method + " " + r.URL.Path {
	case "GET /api/vending/products":
		_, _ = io.WriteString(w, `{"products":[{"id":"p001","name":"Coca Cola","price":150,"stock":10,"category":"drinks","image":"🥤"}]}`)
	case "GET /api/vending/inventory":
		_, _ = io.WriteString(w, `{"inventory":{"p001":{"name":"Coca Cola","stock":10,"category":"drinks"},"p002":{"name":"Onigiri","stock":2,"category":"food"},"p003":{"name":"Green Tea","stock":0,"category":"drinks"}}}`)
	case "POST /api/vending/purchase":
		if rec.Body["product_id"] != "p001" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Product not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"transaction_id":"TXN12345","product":{"id":"p001","name":"Coca Cola","price":150},"quantity":2,"total_price":300,"payment_method":"card","remaining_stock":8}`)
	case "GET /api/vending/sales":
		_, _ = io.WriteString(w, `{"daily_sales":{"total_revenue":12450,"total_transactions":67,"popular_items":[{"name":"Coca Cola","sales_count":15}]},"hourly_trends":[{"hour":9,"transactions":8}]}`)
	case "GET /api/vending/analytics":
		_, _ = io.WriteString(w, `{"performance":{"uptime":"99.2%"},"maintenance":{"last_service":"2024-01-15","next_service":"2024-02-15","alerts":[]},"revenue":{"weekly":87450,"monthly":340200,"year_to_date":1250000}}`)
	case "GET /api/epalette/status":
		_, _ = io.WriteString(w, `{"display":{"text":"Hello","subtext":null,"imageUrl":null,"lastUpdate":"2024-05-01T10:00:00","status":"ready"},"vehicle":{"location":"Tech Park","speed":30,"paused":false,"view":"overview"}}`)
	case "GET /api/epalette/screen/status":
		_, _ = io.WriteString(w, `{"text":"Hello","subtext":"World","imageUrl":null,"lastUpdate":"2024-05-01T10:00:00","status":"ready","screen_active":true,"brightness":85}`)
	case "POST /api/epalette/screen/text", "POST /api/epalette/screen/image", "DELETE /api/epalette/screen":
		_, _ = io.WriteString(w, `{"success":true,"message":"Screen updated","timestamp":"2024-05-01T10:00:00"}`)
	case "POST /api/epalette/control":
		_, _ = io.WriteString(w, `{"success":true,"action":"move_to","message":"Moving to destination: West Park","data":{"speed":40,"paused":false,"location":"West Park"}}`)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (f *fakeGateway) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeGateway) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setup(t *testing.T) (*dispatch.Dispatcher, *fakeGateway) {
	t.Helper()
	fg := &fakeGateway{}
	srv := httptest.NewServer(fg)
	t.Cleanup(srv.Close)
	c, err := gateway.New(srv.URL)
	require.NoError(t, err)

	reg := tool.NewRegistry()
	require.NoError(t, Register(reg, Vending(c)...))
	require.NoError(t, Register(reg, EPalette(c)...))
	reg.Seal()
	return dispatch.New(reg), fg
}

func render(t *testing.T, d *dispatch.Dispatcher, name string, res tool.Result) string {
	t.Helper()
	require.True(t, res.OK(), "%s: %v", name, res.Err())
	e, err := d.Registry().Entry(name)
	require.NoError(t, err)
	require.NotNil(t, e.Format)
	text, err := e.Format(res.Payload)
	require.NoError(t, err)
	return text
}

func TestVendingTools(t *testing.T) {
	d, fg := setup(t)
	ctx := context.Background()

	text := render(t, d, "get_products", d.InvokeJSON(ctx, "get_products", nil))
	assert.Contains(t, text, "Coca Cola (id p001): ¥150, 10 in stock, drinks")

	text = render(t, d, "get_inventory", d.InvokeJSON(ctx, "get_inventory", nil))
	assert.Contains(t, text, "Inventory: 12 items across 3 products.")
	assert.Contains(t, text, "Low stock: Onigiri: 2 left.")
	assert.Contains(t, text, "Out of stock: Green Tea.")

	res := d.InvokeJSON(ctx, "make_purchase", json.RawMessage(`{"product_id":"p001","quantity":2}`))
	text = render(t, d, "make_purchase", res)
	assert.Equal(t, "Purchased 2 x Coca Cola for ¥300 (paid by card). Transaction TXN12345. 8 left in stock.", text)
	last := fg.last()
	assert.Equal(t, "/api/vending/purchase", last.Path)
	assert.Equal(t, map[string]any{"product_id": "p001", "quantity": float64(2), "payment_method": "card"}, last.Body)

	text = render(t, d, "get_sales_data", d.InvokeJSON(ctx, "get_sales_data", nil))
	assert.Contains(t, text, "Today: ¥12,450 revenue, 67 transactions")
	assert.Contains(t, text, "09:00 8")

	text = render(t, d, "get_analytics", d.InvokeJSON(ctx, "get_analytics", nil))
	assert.Contains(t, text, "¥1,250,000 year to date")
}

func TestPurchaseUnknownProductIsRejected(t *testing.T) {
	d, _ := setup(t)
	res := d.InvokeJSON(context.Background(), "make_purchase", json.RawMessage(`{"product_id":"zzz"}`))
	require.False(t, res.OK())
	assert.Equal(t, errmodel.CodeRemoteRejected, res.Kind())
	assert.Contains(t, res.Failure.Message, "Product not found")
}

func TestPurchaseValidationNeverReachesGateway(t *testing.T) {
	d, fg := setup(t)
	for _, raw := range []string{`{}`, `{"product_id":"p001","quantity":0}`, `{"product_id":"p001","payment_method":"bitcoin"}`} {
		res := d.InvokeJSON(context.Background(), "make_purchase", json.RawMessage(raw))
		assert.False(t, res.OK(), raw)
	}
	assert.Equal(t, 0, fg.count())
}

func TestEPaletteTools(t *testing.T) {
	d, fg := setup(t)
	ctx := context.Background()

	text := render(t, d, "get_epalette_status", d.InvokeJSON(ctx, "get_epalette_status", nil))
	assert.Contains(t, text, "Location: Tech Park")
	assert.Contains(t, text, "Speed: 30 km/h")
	assert.Contains(t, text, "Subtext: n/a")

	text = render(t, d, "get_display_status", d.InvokeJSON(ctx, "get_display_status", nil))
	assert.Contains(t, text, "Subtext: World")
	assert.Contains(t, text, "Brightness: 85%")

	res := d.InvokeJSON(ctx, "update_display_text", json.RawMessage(`{"text":"Lunch special"}`))
	assert.Equal(t, "Screen updated (at 2024-05-01T10:00:00)", render(t, d, "update_display_text", res))
	assert.Equal(t, map[string]any{"text": "Lunch special", "font_size": float64(24), "color": "white"}, fg.last().Body)

	res = d.InvokeJSON(ctx, "update_display_image", json.RawMessage(`{"image_url":"ftp://x"}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())

	res = d.InvokeJSON(ctx, "clear_display", nil)
	require.True(t, res.OK())
	assert.Equal(t, http.MethodDelete, fg.last().Method)

	res = d.InvokeJSON(ctx, "control_vehicle", json.RawMessage(`{"action":"move_to","destination":"West Park","speed":40}`))
	text = render(t, d, "control_vehicle", res)
	assert.Equal(t, "Moving to destination: West Park. Location: West Park, speed 40 km/h, paused: no.", text)
}

func TestControlVehicleValidation(t *testing.T) {
	d, fg := setup(t)
	ctx := context.Background()

	res := d.InvokeJSON(ctx, "control_vehicle", json.RawMessage(`{"action":"move_to"}`))
	assert.Equal(t, errmodel.CodeMissingArgument, res.Kind())

	res = d.InvokeJSON(ctx, "control_vehicle", json.RawMessage(`{"action":"fly"}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())

	res = d.InvokeJSON(ctx, "control_vehicle", json.RawMessage(`{"action":"start","speed":250}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())

	res = d.InvokeJSON(ctx, "control_vehicle", json.RawMessage(`{"action":"move_to","destination":"Mars"}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())
	assert.Equal(t, 0, fg.count())
}

func TestParseSets(t *testing.T) {
	got, err := ParseSets(nil)
	require.NoError(t, err)
	assert.Equal(t, Sets(), got)

	got, err = ParseSets([]string{"citydb, vending"})
	require.NoError(t, err)
	assert.Equal(t, []string{SetVending, SetCityDB}, got)

	_, err = ParseSets([]string{"toaster"})
	assert.Error(t, err)
}

func cityDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	ctx := context.Background()
	db, err := citydb.Open(ctx, "sqlite:file:devices_citydb?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := t.TempDir()
	files := map[string]string{
		"residents.csv": "id,name,age,district,occupation,income,family_size\n1,Aoi,34,Tech Park,Engineer,5200000,3\n2,Ren,61,West Park,Retired,2100000,2\n",
		"tenant.csv":    "id,name,type,district,revenue,employees,established_year\n1,Sakura Cafe,restaurant,Central Plaza,42000000,12,2015\n",
		"traffic.csv":   "datetime,location,vehicle_count,avg_speed,traffic_level,weather\n2024-05-01 08:00:00,Central Plaza,420,18.5,high,sunny\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	_, err = db.Provision(ctx, dir, true)
	require.NoError(t, err)

	reg := tool.NewRegistry()
	require.NoError(t, Register(reg, CityDB(db, 0)...))
	reg.Seal()
	return dispatch.New(reg)
}

func TestCityDBTools(t *testing.T) {
	d := cityDispatcher(t)
	ctx := context.Background()

	res := d.InvokeJSON(ctx, "execute_sql", json.RawMessage(`{"query":"SELECT name, age FROM residents ORDER BY id"}`))
	text := render(t, d, "execute_sql", res)
	assert.Equal(t, "2 rows\nname | age\nAoi | 34\nRen | 61", text)

	res = d.InvokeJSON(ctx, "execute_sql", json.RawMessage(`{"query":"DROP TABLE residents"}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())

	res = d.InvokeJSON(ctx, "execute_sql", json.RawMessage(`{"query":"SELECT * FROM nowhere"}`))
	assert.Equal(t, errmodel.CodeRemoteRejected, res.Kind())

	res = d.InvokeJSON(ctx, "get_sample_data", json.RawMessage(`{"table":"tenant"}`))
	text = render(t, d, "get_sample_data", res)
	assert.Contains(t, text, "Sakura Cafe")

	res = d.InvokeJSON(ctx, "get_sample_data", json.RawMessage(`{"table":"users"}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())

	res = d.InvokeJSON(ctx, "get_sample_data", json.RawMessage(`{"table":"tenant","limit":1001}`))
	assert.Equal(t, errmodel.CodeInvalidArgument, res.Kind())

	text = render(t, d, "get_table_info", d.InvokeJSON(ctx, "get_table_info", nil))
	assert.Contains(t, text, "- residents (2 rows): id ")

	text = render(t, d, "test_connection", d.InvokeJSON(ctx, "test_connection", nil))
	assert.Equal(t, "Database connection ok (sqlite3).", text)
}

func TestFormatTableLimitsRows(t *testing.T) {
	tbl := citydb.Table{Columns: []string{"n"}}
	for i := 0; i < 25; i++ {
		tbl.Rows = append(tbl.Rows, map[string]any{"n": i})
	}
	tbl.RowCount = len(tbl.Rows)
	b, err := json.Marshal(tbl)
	require.NoError(t, err)
	text, err := formatTable(b)
	require.NoError(t, err)
	assert.Contains(t, text, "... 5 more rows")
	assert.NotContains(t, text, "\n20\n")
}

func TestFormattersRejectGarbage(t *testing.T) {
	for _, f := range []tool.Formatter{formatProducts, formatInventory, formatPurchase, formatTable} {
		_, err := f(json.RawMessage(`"nope"`))
		assert.Error(t, err)
	}
}

func TestYen(t *testing.T) {
	assert.Equal(t, "¥0", yen(0))
	assert.Equal(t, "¥150", yen(150))
	assert.Equal(t, "¥12,450", yen(12450))
	assert.Equal(t, "¥1,250,000", yen(1250000))
	assert.Equal(t, "-¥1,000", yen(-1000))
}
