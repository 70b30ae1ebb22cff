package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/livrini/internal/model"
)

func TestGenerateOTP_LengthAndDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTP(6)
		if err != nil {
			t.Fatalf("generateOTP: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}
}

func TestOTPEqual(t *testing.T) {
	if !otpEqual("012345", "012345") {
		t.Fatalf("equal codes must match")
	}
	if otpEqual("012345", "12345") {
		t.Fatalf("leading zero must matter")
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret-pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, "secret-pass"); err != nil {
		t.Fatalf("Compare with right password: %v", err)
	}
	if err := h.Compare(hash, "other-pass"); err == nil {
		t.Fatalf("Compare with wrong password must fail")
	}
}

func TestNewBcryptHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewBcryptHasher(100)
	if h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", h.cost)
	}
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), time.Second)

	var done atomic.Int32
	d.Go("fails", func(context.Context) error { return errors.New("boom") })
	d.Go("panics", func(context.Context) error { panic("boom") })
	d.Go("ok", func(context.Context) error {
		done.Add(1)
		return nil
	})
	d.Wait()

	if done.Load() != 1 {
		t.Fatalf("healthy task must run, got %d", done.Load())
	}
}

func TestDispatcher_TaskContextHasDeadline(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), time.Second)

	var ok atomic.Bool
	d.Go("deadline", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		ok.Store(hasDeadline && ctx.Err() == nil)
		return nil
	})
	d.Wait()

	if !ok.Load() {
		t.Fatalf("task context must be live and bounded by a deadline")
	}
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	d := newDispatcher(zap.NewNop(), time.Second, 2)

	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		if !d.Go("busy", func(context.Context) error {
			<-release
			return nil
		}) {
			t.Fatalf("task %d must start while slots are free", i)
		}
	}

	returned := make(chan bool, 1)
	go func() {
		returned <- d.Go("welcome-mail", func(context.Context) error { return nil })
	}()

	select {
	case started := <-returned:
		if started {
			t.Fatalf("task must be dropped when all slots are busy")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("Go blocked the caller while all slots were busy")
	}

	close(release)
	d.Wait()

	if !d.Go("after", func(context.Context) error { return nil }) {
		t.Fatalf("slots must be free again after Wait")
	}
	d.Wait()
}

func TestViewerCanSee(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	cases := []struct {
		name   string
		viewer Viewer
		want   bool
	}{
		{"owner", Viewer{UserID: owner, Role: model.RoleClient}, true},
		{"other client", Viewer{UserID: other, Role: model.RoleClient}, false},
		{"admin", Viewer{UserID: other, Role: model.RoleAdmin}, true},
		{"fournisseur", Viewer{UserID: other, Role: model.RoleFournisseur}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.viewer.canSee(owner); got != tc.want {
				t.Fatalf("canSee = %v, want %v", got, tc.want)
			}
		})
	}
}
