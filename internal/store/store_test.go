package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/antidoom/internal/domain"
)

// runCounterStoreTests exercises the CounterStore contract against any backend.
func runCounterStoreTests(t *testing.T, newStore func(t *testing.T) CounterStore) {
	t.Helper()

	t.Run("missing counter reads as zero", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetCounter(context.Background(), CounterKey{Subject: "u1", Period: "2026-01-01", Kind: domain.KindChatMessages})
		if err != nil {
			t.Fatalf("GetCounter failed: %v", err)
		}
		if got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
	})

	t.Run("increment accumulates and returns new value", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := CounterKey{Subject: "u1", Period: "2026-01-01", Kind: domain.KindCallSeconds}

		if v, err := s.IncrementCounter(ctx, key, 12.5); err != nil || v != 12.5 {
			t.Fatalf("first increment = %v, %v", v, err)
		}
		if v, err := s.IncrementCounter(ctx, key, 0.25); err != nil || v != 12.75 {
			t.Fatalf("second increment = %v, %v", v, err)
		}
		got, err := s.GetCounter(ctx, key)
		if err != nil || got != 12.75 {
			t.Fatalf("GetCounter = %v, %v", got, err)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		day1 := CounterKey{Subject: "u1", Period: "2026-01-01", Kind: domain.KindManualUnblocks}
		day2 := CounterKey{Subject: "u1", Period: "2026-01-02", Kind: domain.KindManualUnblocks}
		other := CounterKey{Subject: "u2", Period: "2026-01-01", Kind: domain.KindManualUnblocks}

		if _, err := s.IncrementCounter(ctx, day1, 3); err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		for _, k := range []CounterKey{day2, other} {
			got, err := s.GetCounter(ctx, k)
			if err != nil {
				t.Fatalf("GetCounter failed: %v", err)
			}
			if got != 0 {
				t.Fatalf("expected %+v untouched, got %v", k, got)
			}
		}
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := CounterKey{Subject: "u1", Period: "2026-01-01", Kind: domain.KindChatMessages}

		const workers, perWorker = 10, 10
		var wg sync.WaitGroup
		errCh := make(chan error, workers*perWorker)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					if _, err := s.IncrementCounter(ctx, key, 1); err != nil {
						errCh <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			t.Fatalf("IncrementCounter failed: %v", err)
		}

		got, err := s.GetCounter(ctx, key)
		if err != nil {
			t.Fatalf("GetCounter failed: %v", err)
		}
		if got != workers*perWorker {
			t.Fatalf("expected %d, got %v", workers*perWorker, got)
		}
	})

	t.Run("delete counters is scoped to subject", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mine := CounterKey{Subject: "u1", Period: "2026-01-01", Kind: domain.KindChatMessages}
		theirs := CounterKey{Subject: "u2", Period: "2026-01-01", Kind: domain.KindChatMessages}
		_, _ = s.IncrementCounter(ctx, mine, 1)
		_, _ = s.IncrementCounter(ctx, CounterKey{Subject: "u1", Period: "2026-01-02", Kind: domain.KindCallSeconds}, 5)
		_, _ = s.IncrementCounter(ctx, theirs, 1)

		n, err := s.DeleteCounters(ctx, "u1")
		if err != nil {
			t.Fatalf("DeleteCounters failed: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 deleted, got %d", n)
		}
		if got, _ := s.GetCounter(ctx, theirs); got != 1 {
			t.Fatalf("expected other subject untouched, got %v", got)
		}
	})

	t.Run("delete counters treats subject literally", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		keys := []CounterKey{
			{Subject: "+15550001", Period: "2026-01-01T10", Kind: domain.KindOTPSends},
			{Subject: "+15550002", Period: "2026-01-01T10", Kind: domain.KindOTPSends},
			{Subject: "+1:otp_sends", Period: "2026-01-01T10", Kind: domain.KindOTPSends},
		}
		for _, k := range keys {
			if _, err := s.IncrementCounter(ctx, k, 1); err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
		}

		for _, subject := range []string{"*", "+1555000?", "+1555000[12]", "+1"} {
			n, err := s.DeleteCounters(ctx, subject)
			if err != nil {
				t.Fatalf("DeleteCounters(%q) failed: %v", subject, err)
			}
			if n != 0 {
				t.Fatalf("DeleteCounters(%q) deleted %d counters of other subjects", subject, n)
			}
		}
		for _, k := range keys {
			if got, _ := s.GetCounter(ctx, k); got != 1 {
				t.Fatalf("expected %+v untouched, got %v", k, got)
			}
		}

		if n, err := s.DeleteCounters(ctx, "+15550001"); err != nil || n != 1 {
			t.Fatalf("DeleteCounters(+15550001) = %d, %v", n, err)
		}
		if got, _ := s.GetCounter(ctx, keys[1]); got != 1 {
			t.Fatalf("expected neighbouring subject untouched, got %v", got)
		}
	})
}

// runRepositoryTests exercises todos, profiles and account deletion.
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Helper()

	t.Run("todo crud is scoped to phone", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		a, err := r.AddTodo(ctx, "+100", "write report")
		if err != nil {
			t.Fatalf("AddTodo failed: %v", err)
		}
		if _, err := r.AddTodo(ctx, "+200", "someone else's task"); err != nil {
			t.Fatalf("AddTodo failed: %v", err)
		}

		todos, err := r.ListTodos(ctx, "+100")
		if err != nil {
			t.Fatalf("ListTodos failed: %v", err)
		}
		if len(todos) != 1 || todos[0].Task != "write report" || todos[0].Phone != "+100" {
			t.Fatalf("unexpected todos: %+v", todos)
		}

		updated, err := r.UpdateTodo(ctx, "+100", a.ID, "send report")
		if err != nil {
			t.Fatalf("UpdateTodo failed: %v", err)
		}
		if updated.Task != "send report" {
			t.Fatalf("expected updated task, got %q", updated.Task)
		}

		if _, err := r.UpdateTodo(ctx, "+200", a.ID, "hijack"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound updating another phone's todo, got %v", err)
		}

		deleted, err := r.DeleteTodo(ctx, "+100", a.ID)
		if err != nil {
			t.Fatalf("DeleteTodo failed: %v", err)
		}
		if deleted.Task != "send report" {
			t.Fatalf("expected deleted todo returned, got %+v", deleted)
		}
		if _, err := r.DeleteTodo(ctx, "+100", a.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
		todos, _ = r.ListTodos(ctx, "+100")
		if len(todos) != 0 {
			t.Fatalf("expected empty list, got %+v", todos)
		}
	})

	t.Run("profile get-or-create and premium sync", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		p, err := r.GetOrCreateProfile(ctx, "+100")
		if err != nil {
			t.Fatalf("GetOrCreateProfile failed: %v", err)
		}
		if p.IsPremium {
			t.Fatal("new profile should not be premium")
		}

		p, err = r.SetPremium(ctx, "+100", true)
		if err != nil {
			t.Fatalf("SetPremium failed: %v", err)
		}
		if !p.IsPremium {
			t.Fatal("expected premium after sync")
		}

		p, err = r.GetOrCreateProfile(ctx, "+100")
		if err != nil || !p.IsPremium {
			t.Fatalf("expected premium to persist, got %+v, %v", p, err)
		}
	})

	t.Run("delete account cascades", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		_, _ = r.AddTodo(ctx, "+100", "a")
		_, _ = r.AddTodo(ctx, "+100", "b")
		_, _ = r.AddTodo(ctx, "+200", "c")
		_, _ = r.SetPremium(ctx, "+100", true)
		_, _ = r.IncrementCounter(ctx, CounterKey{Subject: "+100", Period: "2026-01-01", Kind: domain.KindCallSeconds}, 30)

		got, err := r.DeleteAccount(ctx, "+100")
		if err != nil {
			t.Fatalf("DeleteAccount failed: %v", err)
		}
		want := domain.AccountDeletion{TodosDeleted: 2, ProfileDeleted: 1, CountersDeleted: 1}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
		if todos, _ := r.ListTodos(ctx, "+200"); len(todos) != 1 {
			t.Fatalf("expected other phone's todos intact, got %+v", todos)
		}
	})
}
