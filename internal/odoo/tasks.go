// Package odoo defines the Odoo user behaviors: the weighted task
// catalogs, the business-process journey and the profiles that group them.
package odoo

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/actor"
	"github.com/example/odoo/loadtest/internal/client"
)

// Reporting names.
const (
	NameMainDashboard     = "Main Dashboard"
	NameSalesMenu         = "Sales Menu"
	NameInventoryMenu     = "Inventory Menu"
	NameAccountingMenu    = "Accounting Menu"
	NameFetchPartners     = "Fetch Partners Data"
	NameFetchProducts     = "Fetch Products Data"
	NameFetchSalesOrders  = "Fetch Sales Orders"
	NameCreatePartner     = "Create Partner"
	NameCreateProduct     = "Create Product"
	NameCreateSaleOrder   = "Create Sale Order"
	NameUpdatePartner     = "Update Partner"
	NameSearchFilters     = "Search with Filters"
	NameReportCount       = "Generate Report Count"
	NameHeavyDataLoad     = "Heavy Data Load"
	NameBrowseMenus       = "Browse Menus"
	NameSalesAnalysis     = "Sales Analysis Report"
	NameInventoryAnalysis = "Inventory Analysis Report"
)

// Web client pages. The fragment selects the view client-side and is never
// sent to the server.
const (
	PathDashboard      = "/web"
	PathSalesMenu      = "/web#action=sale.action_orders&model=sale.order&view_type=list&menu_id=174"
	PathInventoryMenu  = "/web#action=stock.action_picking_tree_all&model=stock.picking&view_type=list"
	PathAccountingMenu = "/web#action=account.action_move_journal_line&model=account.move&view_type=list"
)

// FallbackPartnerID is used by Create Sale Order when the partner lookup
// yields nothing.
const FallbackPartnerID = 1

const browsePause = 2 * time.Second

// Domains sampled by Search with Filters.
var searchDomains = [][]any{
	{[]any{"is_company", "=", true}},
	{[]any{"email", "!=", false}},
	{[]any{"active", "=", true}},
	{[]any{"create_date", ">=", "2023-01-01"}},
}

var productTypes = []string{"product", "service"}

// allRecords is the empty search domain.
func allRecords() []any { return []any{[]any{}} }

func page(name, path string) actor.TaskFunc {
	return func(ctx context.Context, a *actor.Actor) {
		_, _ = a.Get(ctx, name, path)
	}
}

func mainDashboard(ctx context.Context, a *actor.Actor) {
	_, _ = a.Get(ctx, NameMainDashboard, PathDashboard)
}

func salesMenu(ctx context.Context, a *actor.Actor) {
	_, _ = a.Get(ctx, NameSalesMenu, PathSalesMenu)
}

func fetchPartners(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameFetchPartners,
		Model:  "res.partner",
		Method: "search_read",
		Args:   allRecords(),
		Kwargs: map[string]any{
			"fields": []string{"name", "email", "phone", "is_company"},
			"limit":  50,
			"offset": a.Rand.IntN(101),
		},
	})
}

func fetchProducts(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameFetchProducts,
		Model:  "product.template",
		Method: "search_read",
		Args:   allRecords(),
		Kwargs: map[string]any{
			"fields": []string{"name", "list_price", "categ_id", "active"},
			"limit":  50,
			"offset": a.Rand.IntN(51),
		},
	})
}

func fetchSalesOrders(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameFetchSalesOrders,
		Model:  "sale.order",
		Method: "search_read",
		Args:   allRecords(),
		Kwargs: map[string]any{
			"fields": []string{"name", "partner_id", "amount_total", "state", "date_order"},
			"limit":  30,
			"order":  "date_order desc",
		},
	})
}

func createPartner(ctx context.Context, a *actor.Actor) {
	f := a.Faker
	partner := map[string]any{
		"name":       fmt.Sprintf("Test Customer %d", f.Number(1000, 9999)),
		"email":      fmt.Sprintf("test%d@example.com", f.Number(1000, 9999)),
		"phone":      fmt.Sprintf("+1-555-%d", f.Number(1000, 9999)),
		"is_company": f.Bool(),
		"street":     fmt.Sprintf("%d Test Street", f.Number(100, 999)),
		"city":       "Test City",
		"zip":        fmt.Sprintf("%d", f.Number(10000, 99999)),
	}
	create(ctx, a, NameCreatePartner, "res.partner", partner)
}

func createProduct(ctx context.Context, a *actor.Actor) {
	f := a.Faker
	product := map[string]any{
		"name":        fmt.Sprintf("Test Product %d", f.Number(1000, 9999)),
		"list_price":  math.Round(f.Float64Range(10, 1000)*100) / 100,
		"type":        productTypes[a.Rand.IntN(len(productTypes))],
		"categ_id":    1,
		"active":      true,
		"description": fmt.Sprintf("Test product description %d", f.Number(1, 100)),
	}
	create(ctx, a, NameCreateProduct, "product.template", product)
}

// createSaleOrder looks up a partner and falls back to FallbackPartnerID
// when the lookup returns nothing usable.
func createSaleOrder(ctx context.Context, a *actor.Actor) {
	partnerID := FallbackPartnerID
	if id, ok := searchOnePartner(ctx, a, 11); ok {
		partnerID = id
	}
	order := map[string]any{
		"partner_id": partnerID,
		"state":      "draft",
		"date_order": time.Now().Format("2006-01-02 15:04:05"),
	}
	create(ctx, a, NameCreateSaleOrder, "sale.order", order)
}

// updatePartner skips the write when no partner is found.
func updatePartner(ctx context.Context, a *actor.Actor) {
	partnerID, ok := searchOnePartner(ctx, a, 21)
	if !ok {
		a.Log.Debug("no partner to update")
		return
	}
	f := a.Faker
	_, _ = a.Call(ctx, client.Call{
		Name:   NameUpdatePartner,
		Model:  "res.partner",
		Method: "write",
		Args: []any{
			[]int{partnerID},
			map[string]any{
				"phone":  fmt.Sprintf("+1-555-%d", f.Number(1000, 9999)),
				"street": fmt.Sprintf("%d Updated Street", f.Number(100, 999)),
			},
		},
	})
}

func searchWithFilters(ctx context.Context, a *actor.Actor) {
	domain := searchDomains[a.Rand.IntN(len(searchDomains))]
	_, _ = a.Call(ctx, client.Call{
		Name:   NameSearchFilters,
		Model:  "res.partner",
		Method: "search_read",
		Args:   []any{domain},
		Kwargs: map[string]any{
			"fields": []string{"name", "email", "is_company"},
			"limit":  20,
		},
	})
}

func reportCount(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameReportCount,
		Model:  "sale.order",
		Method: "search_count",
		Args:   allRecords(),
	})
}

func heavyDataLoad(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameHeavyDataLoad,
		Model:  "res.partner",
		Method: "search_read",
		Args:   allRecords(),
		Kwargs: map[string]any{
			"fields": []string{"name", "email", "phone", "street", "city", "country_id"},
			"limit":  200,
		},
	})
}

// browseMenus opens the dashboard, pauses, then opens the sales menu.
func browseMenus(ctx context.Context, a *actor.Actor) {
	mainDashboard(ctx, a)
	if err := a.Sleep(ctx, browsePause); err != nil {
		return
	}
	salesMenu(ctx, a)
}

func salesAnalysis(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameSalesAnalysis,
		Model:  "sale.order",
		Method: "read_group",
		Args:   allRecords(),
		Kwargs: map[string]any{
			"fields":  []string{"amount_total:sum", "partner_id"},
			"groupby": []string{"partner_id"},
			"limit":   50,
		},
	})
}

func inventoryAnalysis(ctx context.Context, a *actor.Actor) {
	_, _ = a.Call(ctx, client.Call{
		Name:   NameInventoryAnalysis,
		Model:  "stock.quant",
		Method: "read_group",
		Args:   allRecords(),
		Kwargs: map[string]any{
			"fields":  []string{"quantity:sum", "product_id"},
			"groupby": []string{"product_id"},
			"limit":   100,
		},
	})
}

// create posts a single-record create and returns the new id, if any.
func create(ctx context.Context, a *actor.Actor, name, model string, values map[string]any) (int, bool) {
	resp, err := a.Call(ctx, client.Call{
		Name:   name,
		Model:  model,
		Method: "create",
		Args:   []any{values},
	})
	if err != nil {
		return 0, false
	}
	id, ok := resp.IntResult()
	if ok {
		a.Log.Info("record created", zap.String("model", model), zap.Int("id", id))
	}
	return id, ok
}

// searchOnePartner runs an unnamed res.partner search with a random offset
// in [0, offsets) and returns the first id. The request is reported under
// its path.
func searchOnePartner(ctx context.Context, a *actor.Actor, offsets int) (int, bool) {
	resp, err := a.Call(ctx, client.Call{
		Model:  "res.partner",
		Method: "search",
		Args:   allRecords(),
		Kwargs: map[string]any{"limit": 1, "offset": a.Rand.IntN(offsets)},
	})
	if err != nil {
		return 0, false
	}
	return resp.FirstIntResult()
}
