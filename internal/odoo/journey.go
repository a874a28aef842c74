package odoo

import (
	"context"
	"fmt"
	"time"

	"github.com/example/odoo/loadtest/internal/actor"
)

// Journey step names.
const (
	NameJourneyCustomer  = "Journey: Create Customer"
	NameJourneySaleOrder = "Journey: Create Sale Order"
)

const journeyPause = 2 * time.Second

// Journey creates a customer and then a draft sale order for it.
func Journey() *actor.Sequencer {
	return &actor.Sequencer{
		Name: "customer journey",
		Steps: []actor.Step{
			{Name: NameJourneyCustomer, Run: journeyCustomer},
			{Name: NameJourneySaleOrder, Pause: journeyPause, NeedsRef: true, Run: journeySaleOrder},
		},
	}
}

func journeyCustomer(ctx context.Context, a *actor.Actor, _ actor.Ref) actor.Ref {
	f := a.Faker
	id, ok := create(ctx, a, NameJourneyCustomer, "res.partner", map[string]any{
		"name":       fmt.Sprintf("Journey Customer %d", f.Number(1000, 9999)),
		"email":      fmt.Sprintf("journey%d@example.com", f.Number(1000, 9999)),
		"is_company": true,
	})
	if !ok {
		return actor.Missing
	}
	return actor.Found(id)
}

func journeySaleOrder(ctx context.Context, a *actor.Actor, in actor.Ref) actor.Ref {
	partnerID, _ := in.ID()
	id, ok := create(ctx, a, NameJourneySaleOrder, "sale.order", map[string]any{
		"partner_id": partnerID,
		"state":      "draft",
	})
	if !ok {
		return actor.Missing
	}
	return actor.Found(id)
}
