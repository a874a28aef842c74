package odoo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/odoo/loadtest/internal/actor"
)

// ErrUnknownProfile is returned for a profile name that is not defined.
var ErrUnknownProfile = errors.New("odoo: unknown profile")

// Profile names.
const (
	ProfileDefault = "default"
	ProfileHeavy   = "heavy"
	ProfileLight   = "light"
	ProfileReports = "reports"
	ProfileJourney = "journey"
)

// DefaultProfiles is the population used when none is selected.
var DefaultProfiles = []string{ProfileDefault, ProfileHeavy, ProfileLight}

// ProfileNames lists every defined profile in declaration order.
func ProfileNames() []string {
	return []string{ProfileDefault, ProfileHeavy, ProfileLight, ProfileReports, ProfileJourney}
}

// DefaultTasks is the catalog shared by the default, heavy and light users.
func DefaultTasks() []actor.Task {
	return []actor.Task{
		{Name: NameMainDashboard, Weight: 10, Run: mainDashboard},
		{Name: NameSalesMenu, Weight: 8, Run: salesMenu},
		{Name: NameInventoryMenu, Weight: 6, Run: page(NameInventoryMenu, PathInventoryMenu)},
		{Name: NameAccountingMenu, Weight: 5, Run: page(NameAccountingMenu, PathAccountingMenu)},
		{Name: NameFetchPartners, Weight: 15, Run: fetchPartners},
		{Name: NameFetchProducts, Weight: 12, Run: fetchProducts},
		{Name: NameFetchSalesOrders, Weight: 10, Run: fetchSalesOrders},
		{Name: NameCreatePartner, Weight: 5, Run: createPartner},
		{Name: NameCreateProduct, Weight: 3, Run: createProduct},
		{Name: NameCreateSaleOrder, Weight: 2, Run: createSaleOrder},
		{Name: NameUpdatePartner, Weight: 4, Run: updatePartner},
		{Name: NameSearchFilters, Weight: 8, Run: searchWithFilters},
		{Name: NameReportCount, Weight: 2, Run: reportCount},
	}
}

// ReportTasks is the analytics user's catalog.
func ReportTasks() []actor.Task {
	return []actor.Task{
		{Name: NameSalesAnalysis, Weight: 5, Run: salesAnalysis},
		{Name: NameInventoryAnalysis, Weight: 3, Run: inventoryAnalysis},
	}
}

// Profile builds one named profile.
func Profile(name string) (*actor.Profile, error) {
	var (
		p     = &actor.Profile{Name: name, Weight: 1, ThinkTime: actor.Between(2, 5)}
		tasks []actor.Task
	)
	switch name {
	case ProfileDefault:
		tasks = DefaultTasks()
	case ProfileHeavy:
		tasks = append(DefaultTasks(), actor.Task{Name: NameHeavyDataLoad, Weight: 20, Run: heavyDataLoad})
	case ProfileLight:
		p.Weight = 3
		p.ThinkTime = actor.Between(5, 15)
		tasks = append(DefaultTasks(), actor.Task{Name: NameBrowseMenus, Weight: 1, Run: browseMenus})
	case ProfileReports:
		p.ThinkTime = actor.Between(10, 30)
		tasks = ReportTasks()
	case ProfileJourney:
		p.Behavior = Journey()
	default:
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProfile, name, strings.Join(ProfileNames(), ", "))
	}

	if tasks != nil {
		c, err := actor.NewCatalog(tasks...)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		p.Behavior = c
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Profiles builds the named profiles, DefaultProfiles when names is empty.
// Duplicate names are built once.
func Profiles(names []string) ([]*actor.Profile, error) {
	if len(names) == 0 {
		names = DefaultProfiles
	}
	seen := make(map[string]bool, len(names))
	out := make([]*actor.Profile, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		p, err := Profile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no profile selected", ErrUnknownProfile)
	}
	return out, nil
}
