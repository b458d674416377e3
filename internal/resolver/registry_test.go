package resolver

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

type stubResolver struct {
	id string
}

func (s stubResolver) ID() string { return s.id }

func (s stubResolver) Run(context.Context, Server, *models.Result) (models.Outcome, error) {
	return models.NewResult(time.Now(), nil), nil
}

func stubConstructor(id string) Constructor {
	return func(Settings) (Resolver, error) { return stubResolver{id: id}, nil }
}

func TestRegister_Errors(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	if err := reg.Register("a", stubConstructor("a")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   string
		c    Constructor
		want error
	}{
		{"empty id", "", stubConstructor(""), ErrEmptyID},
		{"duplicate id", "a", stubConstructor("a"), ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Register(tt.id, tt.c); !errors.Is(err, tt.want) {
				t.Errorf("Register(%q) = %v, want %v", tt.id, err, tt.want)
			}
		})
	}

	if err := reg.Register("nil", nil); err == nil {
		t.Error("Register with nil constructor should fail")
	}
}

func TestCreate_UnknownID(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	if _, err := reg.Create("missing", nil); !errors.Is(err, ErrUnknownResolver) {
		t.Errorf("Create(missing) = %v, want ErrUnknownResolver", err)
	}
}

func TestCreate_FreezesRegistry(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	if err := reg.Register("a", stubConstructor("a")); err != nil {
		t.Fatal(err)
	}

	res, err := reg.Create("a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID() != "a" {
		t.Errorf("ID() = %q, want a", res.ID())
	}

	if err := reg.Register("b", stubConstructor("b")); !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("Register after Create = %v, want ErrRegistryFrozen", err)
	}
}

func TestFreeze(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Freeze()
	if err := reg.Register("a", stubConstructor("a")); !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("Register after Freeze = %v, want ErrRegistryFrozen", err)
	}
}

func TestCreate_ConstructorError(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	boom := errors.New("boom")
	if err := reg.Register("a", func(Settings) (Resolver, error) { return nil, boom }); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Create("a", nil); !errors.Is(err, boom) {
		t.Errorf("Create(a) = %v, want wrapped constructor error", err)
	}
}

func TestCreate_MismatchedID(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	if err := reg.Register("a", stubConstructor("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Create("a", nil); err == nil {
		t.Error("Create should reject a resolver reporting a different id")
	}
}

func TestIDs_Sorted(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	for _, id := range []string{"c", "a", "b"} {
		if err := reg.Register(id, stubConstructor(id)); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := reg.IDs(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	if err := RegisterBuiltins(reg, BuiltinOptions{Pinger: &fakePinger{}, Runner: &fakeRunner{}}); err != nil {
		t.Fatal(err)
	}
	want := []string{CRCONID, NetworkID, TracerouteID}
	if got := reg.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	if err := RegisterBuiltins(reg, BuiltinOptions{}); err == nil {
		t.Error("registering built-ins twice should fail")
	}
}

func TestCreate_NamesResolverLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	reg := NewRegistry(zap.New(core))
	if err := reg.Register("network", func(s Settings) (Resolver, error) {
		s.Logger.Info("created")
		return stubResolver{id: "network"}, nil
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Create("network", nil); err != nil {
		t.Fatal(err)
	}

	entries := logs.FilterMessage("created").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if got := entries[0].LoggerName; got != "resolver.network" {
		t.Errorf("LoggerName = %q, want resolver.network", got)
	}
}
