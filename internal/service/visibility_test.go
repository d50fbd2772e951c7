package service

import (
	"context"
	"testing"

	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/domain/visibility"
	"github.com/Strob0t/leadgate/internal/port/database"
)

func TestVisibility_Predicate(t *testing.T) {
	v := NewVisibilityFilter(actor.DefaultPolicy(), nil)

	if _, ok := v.Predicate(teamLead).(visibility.All); !ok {
		t.Error("team lead should see all")
	}
	if _, ok := v.Predicate(admin).(visibility.All); !ok {
		t.Error("administrator should see all")
	}
	if _, ok := v.Predicate(outsider).(visibility.None); !ok {
		t.Error("user without a lead role should see nothing")
	}
	if _, ok := v.Predicate(agent("alice")).(visibility.None); !ok {
		t.Error("agent with empty allow-list should see nothing")
	}
	if _, ok := v.Predicate(agent("alice", "Sales")).(visibility.And); !ok {
		t.Error("agent with allow-list should get a conjunction")
	}
}

func TestVisibility_PredicateAndCheckAgree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pipelines := []string{"Sales", "Support", ""}
	owners := []string{"alice", "bob", ""}
	var leads []*lead.Lead
	for _, p := range pipelines {
		for _, o := range owners {
			l := e.seed(t, lead.Lead{Pipeline: p, OwnerUserID: o})
			if err := e.binder.SyncOwner(ctx, l); err != nil {
				t.Fatal(err)
			}
			leads = append(leads, l)
		}
	}

	users := []actor.Actor{
		admin, manager, teamLead, outsider,
		agent("alice"),
		agent("alice", "Sales"),
		agent("alice", "Sales", map[string]any{"value": "Support"}),
		agent("bob", "Support"),
		agent("carol", "Sales", "Support"),
	}

	for _, u := range users {
		listed, err := e.store.ListLeads(ctx, e.vis.Predicate(u), database.ListOptions{Limit: 1000})
		if err != nil {
			t.Fatal(err)
		}
		inList := make(map[string]bool, len(listed))
		for _, l := range listed {
			inList[l.ID] = true
		}
		for _, l := range leads {
			ok, err := e.vis.Check(ctx, l, u)
			if err != nil {
				t.Fatal(err)
			}
			if ok != inList[l.ID] {
				t.Errorf("user %s roles %v lead (pipeline=%q owner=%q): check=%v predicate=%v",
					u.ID, u.Roles, l.Pipeline, l.OwnerUserID, ok, inList[l.ID])
			}
		}
	}
}

func TestVisibility_EmptyAllowListDeniesOwnLead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	l := e.seed(t, lead.Lead{Pipeline: "Sales", OwnerUserID: "alice"})
	if err := e.binder.SyncOwner(ctx, l); err != nil {
		t.Fatal(err)
	}
	alice := agent("alice")

	if ok, _ := e.store.HasOpenAssignment(ctx, l.ID, "alice"); !ok {
		t.Fatal("precondition: alice should hold an open assignment")
	}
	list, err := e.leads.List(ctx, alice, database.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("agent with empty allow-list saw %d leads", len(list))
	}
	if ok, _ := e.vis.Check(ctx, l, alice); ok {
		t.Fatal("check allowed a lead the predicate hides")
	}
}

func TestVisibility_AgentNeedsBothConditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assignedWrongPipeline := e.seed(t, lead.Lead{Pipeline: "Support", OwnerUserID: "alice"})
	allowedUnassigned := e.seed(t, lead.Lead{Pipeline: "Sales", OwnerUserID: "bob"})
	visible := e.seed(t, lead.Lead{Pipeline: "Sales", OwnerUserID: "alice"})
	for _, l := range []*lead.Lead{assignedWrongPipeline, allowedUnassigned, visible} {
		if err := e.binder.SyncOwner(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	list, err := e.leads.List(ctx, agent("alice", "Sales"), database.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != visible.ID {
		t.Fatalf("got %d leads, want only %s", len(list), visible.ID)
	}
}
