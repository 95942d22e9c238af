package extension_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/extension"
)

// recorder appends its label to the state's system prompt.
func recorder(label string) extension.Extension {
	return extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
		st.AddSystem(label)
		return st, nil
	})
}

func order(st *loop.State) string {
	return strings.Join(st.SystemPrompt, ",")
}

func TestInvoke_PriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		regs []extension.Registration
		want string
	}{
		{
			name: "registered ascending",
			regs: []extension.Registration{
				{Point: extension.IterationStart, Priority: 10, Name: "ten", Extension: recorder("ten")},
				{Point: extension.IterationStart, Priority: 20, Name: "twenty", Extension: recorder("twenty")},
			},
			want: "ten,twenty",
		},
		{
			name: "registered descending",
			regs: []extension.Registration{
				{Point: extension.IterationStart, Priority: 20, Name: "twenty", Extension: recorder("twenty")},
				{Point: extension.IterationStart, Priority: 10, Name: "ten", Extension: recorder("ten")},
			},
			want: "ten,twenty",
		},
		{
			name: "ties broken by name",
			regs: []extension.Registration{
				{Point: extension.IterationStart, Priority: 10, Name: "b", Extension: recorder("b")},
				{Point: extension.IterationStart, Priority: 10, Name: "a", Extension: recorder("a")},
			},
			want: "a,b",
		},
		{
			name: "other points ignored",
			regs: []extension.Registration{
				{Point: extension.IterationEnd, Priority: 1, Name: "end", Extension: recorder("end")},
				{Point: extension.IterationStart, Priority: 5, Name: "start", Extension: recorder("start")},
			},
			want: "start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := extension.New(nil)
			for _, r := range tt.regs {
				if err := p.Register(r); err != nil {
					t.Fatalf("Register(%s): %v", r.Name, err)
				}
			}

			st := p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
			if got := order(st); got != tt.want {
				t.Errorf("order = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegister_ReplacesSameKey(t *testing.T) {
	p := extension.New(nil)
	p.Register(extension.Registration{Point: extension.IterationStart, Priority: 10, Name: "x", Extension: recorder("first")})
	p.Register(extension.Registration{Point: extension.IterationStart, Priority: 30, Name: "x", Extension: recorder("second")})

	regs := p.List(extension.IterationStart)
	if len(regs) != 1 || regs[0].Priority != 30 {
		t.Fatalf("List() = %+v, want one entry at priority 30", regs)
	}

	st := p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
	if got := order(st); got != "second" {
		t.Errorf("order = %q", got)
	}
}

func TestProfile_ShadowsDefault(t *testing.T) {
	p := extension.New(nil)
	err := p.LoadDefaults(
		extension.Registration{Point: extension.IterationStart, Priority: 10, Name: "main_prompt", Extension: recorder("default-main")},
		extension.Registration{Point: extension.IterationStart, Priority: 20, Name: "capabilities", Extension: recorder("default-caps")},
		extension.Registration{Point: extension.IterationStart, Priority: 50, Name: "recall", Extension: recorder("default-recall")},
	)
	if err != nil {
		t.Fatal(err)
	}
	err = p.LoadProfile(
		extension.Registration{Point: extension.IterationStart, Priority: 25, Name: "main_prompt", Extension: recorder("profile-main")},
		extension.Registration{Point: extension.IterationStart, Name: "recall", Disabled: true},
	)
	if err != nil {
		t.Fatal(err)
	}

	st := p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
	if got := order(st); got != "default-caps,profile-main" {
		t.Errorf("order = %q", got)
	}

	// Dropping the profile brings the defaults back.
	if err := p.LoadProfile(); err != nil {
		t.Fatal(err)
	}
	st = p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
	if got := order(st); got != "default-main,default-caps,default-recall" {
		t.Errorf("order after profile reset = %q", got)
	}
}

func TestInvoke_RollsBackFailures(t *testing.T) {
	tests := []struct {
		name string
		ext  extension.Extension
	}{
		{"error", extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
			st.AddSystem("partial")
			st.Extras["dirty"] = true
			return nil, errors.New("boom")
		})},
		{"panic", extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
			st.AddSystem("partial")
			st.Extras["dirty"] = true
			panic("boom")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &captureObserver{}
			p := extension.New(obs)
			p.Register(extension.Registration{Point: extension.IterationEnd, Priority: 10, Name: "before", Extension: recorder("before")})
			p.Register(extension.Registration{Point: extension.IterationEnd, Priority: 20, Name: "broken", Extension: tt.ext})
			p.Register(extension.Registration{Point: extension.IterationEnd, Priority: 30, Name: "after", Extension: recorder("after")})

			st := p.Invoke(context.Background(), extension.IterationEnd, loop.New(nil, emptyMessage, 0))
			if got := order(st); got != "before,after" {
				t.Errorf("order = %q, want rollback of the failing extension", got)
			}
			if _, dirty := st.Extras["dirty"]; dirty {
				t.Error("extras written by failing extension survived")
			}
			if obs.count() != 1 {
				t.Errorf("observed %d events, want 1", obs.count())
			}
		})
	}
}

func TestInvoke_ReplacementState(t *testing.T) {
	p := extension.New(nil)
	p.Register(extension.Registration{Point: extension.PreModelCall, Priority: 1, Name: "swap",
		Extension: extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
			next := st.Clone()
			next.SystemPrompt = []string{"replaced"}
			return next, nil
		})})

	st := p.Invoke(context.Background(), extension.PreModelCall, loop.New(nil, emptyMessage, 0))
	if got := order(st); got != "replaced" {
		t.Errorf("order = %q", got)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		reg  extension.Registration
		want error
	}{
		{"unknown point", extension.Registration{Point: "nope", Name: "x", Extension: recorder("x")}, extension.ErrUnknownPoint},
		{"empty name", extension.Registration{Point: extension.IterationEnd, Extension: recorder("x")}, extension.ErrEmptyName},
		{"nil extension", extension.Registration{Point: extension.IterationEnd, Name: "x"}, extension.ErrNilExtension},
	}

	p := extension.New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Register(tt.reg); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReload_WaitsForInflight(t *testing.T) {
	p := extension.New(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	p.Register(extension.Registration{Point: extension.IterationStart, Priority: 1, Name: "slow",
		Extension: extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
			close(entered)
			<-release
			return st, nil
		})})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
	}()
	<-entered

	reloaded := make(chan struct{})
	go func() {
		p.Reload(context.Background(), []extension.Registration{
			{Point: extension.IterationStart, Priority: 1, Name: "fresh", Extension: recorder("fresh")},
		}, nil)
		close(reloaded)
	}()

	select {
	case <-reloaded:
		t.Fatal("Reload returned while an invocation was still running")
	case <-time.After(50 * time.Millisecond):
	}

	// New invocations already see the new table.
	st := p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
	if got := order(st); got != "fresh" {
		t.Errorf("order during reload = %q", got)
	}

	close(release)
	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("Reload did not return after the invocation drained")
	}
	wg.Wait()
}
