package invitation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository/sqlite"
	"github.com/splax/teamhub/internal/repository/sqlite/sqlitetest"
	"github.com/splax/teamhub/internal/role"
	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/service/membership"
	"github.com/splax/teamhub/internal/service/team"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, store *sqlite.Store) Service {
	t.Helper()
	svc, err := New(store, access.New(store), "", nil, newLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewRejectsOwnerDefaultRole(t *testing.T) {
	store := sqlitetest.Open(t)
	if _, err := New(store, access.New(store), role.Owner, nil, newLogger()); err == nil {
		t.Fatalf("expected owner default role rejected")
	}
	if _, err := New(store, access.New(store), role.Admin, nil, newLogger()); err != nil {
		t.Fatalf("admin default role: %v", err)
	}
}

func TestSendValidatesAndDeduplicates(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{Email: "o@x.com"})
	member := sqlitetest.CreateUser(t, store, domain.User{Email: "m@x.com"})
	stranger := sqlitetest.CreateUser(t, store, domain.User{})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	sqlitetest.AddMember(t, store, tm.ID, member, "")
	svc := newService(t, store)

	detail, err := svc.Send(ctx, owner.ID, tm.ID, " A@X.com ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(detail.Invitations) != 1 || detail.Invitations[0].Email != "a@x.com" {
		t.Fatalf("unexpected invitations %+v", detail.Invitations)
	}

	cases := []struct {
		name  string
		actor string
		email string
		want  error
	}{
		{"duplicate", owner.ID, "a@x.com", apperr.ErrConflict},
		{"owner email", owner.ID, "O@x.com", apperr.ErrConflict},
		{"member email", owner.ID, "m@x.com", apperr.ErrConflict},
		{"invalid email", owner.ID, "nope", apperr.ErrValidation},
		{"member sends", member.ID, "b@x.com", apperr.ErrForbidden},
		{"stranger sends", stranger.ID, "b@x.com", apperr.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := svc.Send(ctx, tc.actor, tm.ID, tc.email); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	invitations, _ := store.ListInvitationsByTeam(ctx, tm.ID)
	if len(invitations) != 1 {
		t.Fatalf("rejected sends must not create invitations, got %d", len(invitations))
	}
}

func TestConcurrentSendSingleWinner(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	svc := newService(t, store)

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Send(ctx, owner.ID, tm.ID, "a@x.com")
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != attempts-1 {
		t.Fatalf("expected one winner, got ok=%d conflicts=%d", ok, conflicts)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{})
	invitee := sqlitetest.CreateUser(t, store, domain.User{Email: "a@x.com"})
	other := sqlitetest.CreateUser(t, store, domain.User{Email: "b@x.com"})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	svc := newService(t, store)

	detail, err := svc.Send(ctx, owner.ID, tm.ID, "a@x.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	invID := detail.Invitations[0].ID

	if _, err := svc.Accept(ctx, other, invID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("accept by other user expected not found, got %v", err)
	}
	for i := 0; i < 2; i++ {
		teams, err := svc.Accept(ctx, invitee, invID)
		if err != nil {
			t.Fatalf("accept #%d: %v", i+1, err)
		}
		if len(teams) != 1 || teams[0].ID != tm.ID {
			t.Fatalf("accept #%d unexpected teams %+v", i+1, teams)
		}
	}
	members, _ := store.ListMembers(ctx, tm.ID)
	if len(members) != 1 || members[0].UserID != invitee.ID || members[0].Role != role.Member {
		t.Fatalf("expected exactly one member, got %+v", members)
	}
	if _, err := svc.Accept(ctx, other, invID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("other user replaying accept expected not found, got %v", err)
	}
	if _, err := svc.Accept(ctx, invitee, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown invitation expected not found, got %v", err)
	}
}

func TestAcceptConcurrentDuplicates(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{})
	invitee := sqlitetest.CreateUser(t, store, domain.User{Email: "a@x.com"})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	svc := newService(t, store)
	detail, err := svc.Send(ctx, owner.ID, tm.ID, "a@x.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Accept(ctx, invitee, detail.Invitations[0].ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("duplicate delivery must not fail: %v", err)
		}
	}
	members, _ := store.ListMembers(ctx, tm.ID)
	if len(members) != 1 {
		t.Fatalf("expected one membership, got %d", len(members))
	}
}

func TestOwnerAcceptingOwnInvitationAddsNoMember(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{Email: "o@x.com"})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	svc := newService(t, store)

	// Invitations for the owner can predate a later email change, so create one directly.
	inv := &domain.Invitation{ID: "inv-owner", TeamID: tm.ID, Email: "o@x.com", InvitedBy: owner.ID}
	if err := store.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, owner, inv.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	members, _ := store.ListMembers(ctx, tm.ID)
	if len(members) != 0 {
		t.Fatalf("owner must never become a member row, got %+v", members)
	}
	if _, err := store.GetInvitationByID(ctx, inv.ID); err == nil {
		t.Fatalf("expected invitation consumed")
	}
}

func TestRevoke(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{})
	member := sqlitetest.CreateUser(t, store, domain.User{})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	other := sqlitetest.CreateTeam(t, store, owner.ID, "Other")
	sqlitetest.AddMember(t, store, tm.ID, member, "")
	svc := newService(t, store)

	detail, err := svc.Send(ctx, owner.ID, tm.ID, "a@x.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	invID := detail.Invitations[0].ID
	otherDetail, err := svc.Send(ctx, owner.ID, other.ID, "b@x.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Revoke(ctx, member.ID, tm.ID, invID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("member revoke expected forbidden, got %v", err)
	}
	if err := svc.Revoke(ctx, owner.ID, tm.ID, otherDetail.Invitations[0].ID); err != nil {
		t.Fatalf("cross-team revoke must be a no-op, got %v", err)
	}
	if _, err := store.GetInvitationByID(ctx, otherDetail.Invitations[0].ID); err != nil {
		t.Fatalf("cross-team invitation must survive: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Revoke(ctx, owner.ID, tm.ID, invID); err != nil {
			t.Fatalf("revoke #%d: %v", i+1, err)
		}
	}
	if _, err := store.GetInvitationByID(ctx, invID); err == nil {
		t.Fatalf("expected invitation deleted")
	}
}

func TestRevokeOwnAndList(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	owner := sqlitetest.CreateUser(t, store, domain.User{})
	invitee := sqlitetest.CreateUser(t, store, domain.User{Email: "a@x.com"})
	other := sqlitetest.CreateUser(t, store, domain.User{Email: "b@x.com"})
	tm := sqlitetest.CreateTeam(t, store, owner.ID, "Acme")
	svc := newService(t, store)

	detail, err := svc.Send(ctx, owner.ID, tm.ID, "a@x.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	invID := detail.Invitations[0].ID

	pending, err := svc.ListForUser(ctx, invitee)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending invitation, got %+v %v", pending, err)
	}
	if err := svc.RevokeOwn(ctx, other, invID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("other user decline expected not found, got %v", err)
	}
	if err := svc.RevokeOwn(ctx, invitee, invID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if err := svc.RevokeOwn(ctx, invitee, invID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second decline expected not found, got %v", err)
	}
	if pending, _ := svc.ListForUser(ctx, invitee); len(pending) != 0 {
		t.Fatalf("expected no pending invitations, got %+v", pending)
	}
}

// TestTeamLifecycleScenario walks a team from creation to deletion across
// every workflow.
func TestTeamLifecycleScenario(t *testing.T) {
	store := sqlitetest.Open(t)
	ctx := context.Background()
	logger := newLogger()
	guard := access.New(store)
	teams := team.New(store, guard, nil, nil, nil, logger)
	members := membership.New(store, guard, nil, logger)
	invites := newService(t, store)

	owner := sqlitetest.CreateUser(t, store, domain.User{Email: "o@x.com"})
	user := sqlitetest.CreateUser(t, store, domain.User{Email: "a@x.com"})

	list, err := teams.Create(ctx, owner, "Acme")
	if err != nil || len(list) != 1 || list[0].Name != "Acme" || list[0].OwnerID != owner.ID {
		t.Fatalf("create: %+v %v", list, err)
	}
	acme := list[0]

	detail, err := invites.Send(ctx, owner.ID, acme.ID, "a@x.com")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := invites.Send(ctx, owner.ID, acme.ID, "a@x.com"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second invite expected conflict, got %v", err)
	}

	list, err = invites.Accept(ctx, user, detail.Invitations[0].ID)
	if err != nil || len(list) != 1 || list[0].ID != acme.ID {
		t.Fatalf("accept: %+v %v", list, err)
	}
	if err := members.SwitchCurrentTeam(ctx, user.ID, acme.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if _, err := members.Remove(ctx, owner.ID, acme.ID, user.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := sqlitetest.CurrentTeam(t, store, user.ID); got != "" {
		t.Fatalf("expected user's current team cleared, got %q", got)
	}

	list, err = teams.Delete(ctx, owner.ID, acme.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("delete: %+v %v", list, err)
	}
	if m, _ := store.ListMembers(ctx, acme.ID); len(m) != 0 {
		t.Fatalf("residual members %+v", m)
	}
	if inv, _ := store.ListInvitationsByTeam(ctx, acme.ID); len(inv) != 0 {
		t.Fatalf("residual invitations %+v", inv)
	}
}
