package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/catalog"
	"github.com/Simplici0/bakecost/internal/db"
	"github.com/Simplici0/bakecost/internal/metrics"
	"github.com/Simplici0/bakecost/internal/migrations"
	"github.com/Simplici0/bakecost/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "server-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if _, err := migrations.Up(testContext(t), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func newTestServer(t *testing.T, database *sql.DB, authEnabled bool) *server {
	t.Helper()

	m := metrics.New()
	return &server{
		auth:    newAuthService(database, "test-secret", authEnabled),
		catalog: catalog.New(store.New(database), zap.NewNop(), m, catalog.ModeLive),
		metrics: m,
		log:     zap.NewNop(),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

type ingredientResponse struct {
	ID             int64               `json:"id"`
	TaxRate        decimal.NullDecimal `json:"tax_rate"`
	TaxRatePercent decimal.NullDecimal `json:"tax_rate_percent"`
	UnitCost       decimal.Decimal     `json:"unit_cost"`
}

type recipeResponse struct {
	ID               int64                      `json:"id"`
	Mode             string                     `json:"mode"`
	TotalCost        decimal.Decimal            `json:"total_cost"`
	CostRatioPercent decimal.NullDecimal        `json:"cost_ratio_percent"`
	Subtotals        map[string]decimal.Decimal `json:"subtotals"`
	Items            []struct {
		IngredientName string              `json:"ingredient_name"`
		Cost           decimal.NullDecimal `json:"cost"`
	} `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const (
	flourJSON  = `{"name":"強力粉","price":300,"amount":1000,"unit":"g"}`
	butterJSON = `{"name":"バター","price":200,"amount":500,"unit":"g","tax_type":"exclusive","tax_rate_percent":10}`
	recipeBody = `{"name":"クロワッサン","selling_price":200,"items":[{"ingredient_id":1,"amount":200},{"ingredient_id":2,"amount":50,"section":"filling"}]}`
)

func seedPastry(t *testing.T, h http.Handler) {
	t.Helper()
	for _, body := range []string{flourJSON, butterJSON} {
		if rr := do(t, h, http.MethodPost, "/ingredients", body); rr.Code != http.StatusCreated {
			t.Fatalf("create ingredient: expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	}
	if rr := do(t, h, http.MethodPost, "/recipes", recipeBody); rr.Code != http.StatusCreated {
		t.Fatalf("create recipe: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateIngredientConvertsPercentAndReportsUnitCost(t *testing.T) {
	h := newTestServer(t, newTestDB(t), false).routes()

	rr := do(t, h, http.MethodPost, "/ingredients", butterJSON)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var got ingredientResponse
	decodeBody(t, rr, &got)
	if !got.TaxRate.Valid || !got.TaxRate.Decimal.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected tax_rate 0.1, got %+v", got.TaxRate)
	}
	if !got.TaxRatePercent.Decimal.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected tax_rate_percent 10, got %s", got.TaxRatePercent.Decimal)
	}
	if !got.UnitCost.Equal(decimal.RequireFromString("0.44")) {
		t.Fatalf("expected unit_cost 0.44, got %s", got.UnitCost)
	}
}

func TestStatusMapping(t *testing.T) {
	h := newTestServer(t, newTestDB(t), false).routes()
	seedPastry(t, h)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "zero amount", method: http.MethodPost, path: "/ingredients", body: `{"name":"塩","price":100,"amount":0,"unit":"g"}`, status: http.StatusBadRequest},
		{name: "bad tax type", method: http.MethodPost, path: "/ingredients", body: `{"name":"塩","price":100,"amount":10,"unit":"g","tax_type":"gross"}`, status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/ingredients", body: `{"name":"塩","cost":100}`, status: http.StatusBadRequest},
		{name: "malformed id", method: http.MethodGet, path: "/recipes/abc", status: http.StatusBadRequest},
		{name: "bad mode", method: http.MethodGet, path: "/recipes/1?mode=cached", status: http.StatusBadRequest},
		{name: "missing recipe", method: http.MethodGet, path: "/recipes/99", status: http.StatusNotFound},
		{name: "missing ingredient history", method: http.MethodGet, path: "/ingredients/99/history", status: http.StatusNotFound},
		{name: "unknown ingredient in recipe", method: http.MethodPost, path: "/recipes", body: `{"name":"x","items":[{"ingredient_id":42,"amount":1}]}`, status: http.StatusBadRequest},
		{name: "ingredient in use", method: http.MethodDelete, path: "/ingredients/1", status: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			var body errorResponse
			decodeBody(t, rr, &body)
			if body.Error == "" {
				t.Fatalf("expected error message, got %s", rr.Body.String())
			}
		})
	}
}

func TestRecipeModesAfterPriceChange(t *testing.T) {
	h := newTestServer(t, newTestDB(t), false).routes()
	seedPastry(t, h)

	rr := do(t, h, http.MethodPut, "/ingredients/1", `{"name":"強力粉","price":400,"amount":1000,"unit":"g"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update ingredient: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var live recipeResponse
	decodeBody(t, do(t, h, http.MethodGet, "/recipes/1", ""), &live)
	if live.Mode != "live" || !live.TotalCost.Equal(decimal.NewFromInt(102)) {
		t.Fatalf("expected live total 102, got %s (%s)", live.TotalCost, live.Mode)
	}
	if !live.Subtotals["dough"].Equal(decimal.NewFromInt(80)) || !live.Subtotals["filling"].Equal(decimal.NewFromInt(22)) {
		t.Fatalf("unexpected subtotals: %+v", live.Subtotals)
	}
	if len(live.Items) != 2 || !live.Items[0].Cost.Valid {
		t.Fatalf("expected costed items, got %+v", live.Items)
	}

	var stored recipeResponse
	decodeBody(t, do(t, h, http.MethodGet, "/recipes/1?mode=stored", ""), &stored)
	if stored.Mode != "stored" || !stored.TotalCost.Equal(decimal.NewFromInt(82)) {
		t.Fatalf("expected stored total 82, got %s (%s)", stored.TotalCost, stored.Mode)
	}
	if stored.Subtotals != nil {
		t.Fatalf("expected no subtotals in stored mode, got %+v", stored.Subtotals)
	}
	if len(stored.Items) != 2 || stored.Items[0].Cost.Valid {
		t.Fatalf("expected uncosted items in stored mode, got %+v", stored.Items)
	}
	if !stored.CostRatioPercent.Decimal.Equal(decimal.NewFromInt(41)) {
		t.Fatalf("expected stored ratio 41, got %s", stored.CostRatioPercent.Decimal)
	}
}

func TestRecipeJSONWritesBareNumbers(t *testing.T) {
	h := newTestServer(t, newTestDB(t), false).routes()
	seedPastry(t, h)

	var raw struct {
		TotalCost        json.RawMessage   `json:"total_cost"`
		CostRatioPercent json.RawMessage   `json:"cost_ratio_percent"`
		Items            []json.RawMessage `json:"items"`
	}
	decodeBody(t, do(t, h, http.MethodGet, "/recipes/1?mode=stored", ""), &raw)
	if string(raw.TotalCost) != "82" || string(raw.CostRatioPercent) != "41" {
		t.Fatalf("expected unquoted numbers, got total_cost=%s cost_ratio_percent=%s", raw.TotalCost, raw.CostRatioPercent)
	}

	var item struct {
		Amount json.RawMessage `json:"amount"`
		Cost   json.RawMessage `json:"cost"`
	}
	if len(raw.Items) == 0 {
		t.Fatalf("expected recipe items")
	}
	if err := json.Unmarshal(raw.Items[0], &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if string(item.Amount) != "200" || string(item.Cost) != "null" {
		t.Fatalf("expected amount 200 and null cost, got amount=%s cost=%s", item.Amount, item.Cost)
	}
}

func TestRecipeHistoryAfterUpdate(t *testing.T) {
	h := newTestServer(t, newTestDB(t), false).routes()
	seedPastry(t, h)

	rr := do(t, h, http.MethodPut, "/recipes/1", `{"name":"クロワッサン","items":[{"ingredient_id":1,"amount":100}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update recipe: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var history []struct {
		RecipeID         int64               `json:"recipe_id"`
		TotalCost        decimal.Decimal     `json:"total_cost"`
		CostRatioPercent decimal.NullDecimal `json:"cost_ratio_percent"`
	}
	decodeBody(t, do(t, h, http.MethodGet, "/recipes/1/history", ""), &history)
	if len(history) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(history))
	}
	if history[0].RecipeID != 1 || !history[0].TotalCost.Equal(decimal.NewFromInt(82)) {
		t.Fatalf("unexpected snapshot: %+v", history[0])
	}
	if !history[0].CostRatioPercent.Valid {
		t.Fatalf("expected snapshot ratio")
	}

	var current recipeResponse
	decodeBody(t, do(t, h, http.MethodGet, "/recipes/1", ""), &current)
	if current.CostRatioPercent.Valid {
		t.Fatalf("expected no ratio without selling price, got %s", current.CostRatioPercent.Decimal)
	}
}

func TestHandleRecipeTextReturnsPlainText(t *testing.T) {
	srv := newTestServer(t, newTestDB(t), false)
	seedPastry(t, srv.routes())

	req := httptest.NewRequest(http.MethodGet, "/recipes/1/text", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	srv.handleRecipeText(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", rr.Header().Get("Content-Type"))
	}

	body := rr.Body.String()
	for _, expected := range []string{"クロワッサン", "販売価格: ¥200", "[生地]", "強力粉 200g ¥60.0", "[フィリング]", "小計: ¥22", "総原価: ¥82", "原価率: 41.0%"} {
		if !strings.Contains(body, expected) {
			t.Fatalf("expected body to contain %q, got: %s", expected, body)
		}
	}
}

func TestQuoteDoesNotPersist(t *testing.T) {
	h := newTestServer(t, newTestDB(t), false).routes()
	if rr := do(t, h, http.MethodPost, "/ingredients", flourJSON); rr.Code != http.StatusCreated {
		t.Fatalf("create ingredient: %d", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/quote", `{"selling_price":0,"items":[{"ingredient_id":1,"amount":100}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var quote recipeResponse
	decodeBody(t, rr, &quote)
	if !quote.TotalCost.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected quote total 30, got %s", quote.TotalCost)
	}
	if quote.CostRatioPercent.Valid {
		t.Fatalf("expected no ratio for zero selling price")
	}

	var list []recipeResponse
	decodeBody(t, do(t, h, http.MethodGet, "/recipes", ""), &list)
	if len(list) != 0 {
		t.Fatalf("expected no stored recipes, got %d", len(list))
	}
}

func TestHealthzAndHome(t *testing.T) {
	h := newTestServer(t, newTestDB(t), true).routes()

	for _, path := range []string{"/", "/healthz", "/metrics"} {
		if rr := do(t, h, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
	}
}
