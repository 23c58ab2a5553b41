package lifecycle

import (
	"errors"
	"testing"

	"binScope/internal/model"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from      State
		op        string
		fullDrain bool
		want      State
		wantErr   error
	}{
		{Open, model.OpFundOneSide, false, Open, nil},
		{Empty, model.OpFundOneSide, false, Open, nil},
		{Open, model.OpRemoveSelective, false, Open, nil},
		{Open, model.OpRemoveSelective, true, Empty, nil},
		{Empty, model.OpRemoveSelective, true, Empty, model.ErrInvalidTransition},
		{Open, model.OpRemoveAll, false, Empty, nil},
		{Empty, model.OpRemoveAll, false, Empty, nil},
		{Empty, model.OpClose, false, Closed, nil},
		{Open, model.OpClose, false, Open, model.ErrPositionNotEmpty},
		{Draining, model.OpClose, false, Draining, model.ErrInvalidTransition},
		{Closed, model.OpFundOneSide, false, Closed, model.ErrInvalidTransition},
		{Closed, model.OpRemoveAll, false, Closed, model.ErrInvalidTransition},
		{Closed, model.OpClose, false, Closed, model.ErrInvalidTransition},
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.op, tt.fullDrain)
		if tt.wantErr == nil && err != nil {
			t.Fatalf("%s from %s: unexpected error: %v", tt.op, tt.from, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s from %s: expected %v, got %v", tt.op, tt.from, tt.wantErr, err)
		}
		if got != tt.want {
			t.Fatalf("%s from %s: expected %s, got %s", tt.op, tt.from, tt.want, got)
		}
	}
}

func TestTransitionUnknownOperation(t *testing.T) {
	if _, err := Transition(Open, "swap", false); err == nil {
		t.Fatalf("expected error")
	}
}

func TestObserve(t *testing.T) {
	if got := Observe(model.OpClose, nil); got != Empty {
		t.Fatalf("close without observation: got %s", got)
	}
	if got := Observe(model.OpRemoveAll, nil); got != Open {
		t.Fatalf("remove_all without observation: got %s", got)
	}
	if got := Observe(model.OpFundOneSide, &model.PositionObservation{}); got != Empty {
		t.Fatalf("drained observation: got %s", got)
	}
	if got := Observe(model.OpClose, &model.PositionObservation{LiquidBins: []int32{3}}); got != Open {
		t.Fatalf("liquid observation: got %s", got)
	}
}

func TestInFlight(t *testing.T) {
	tests := []struct {
		from State
		op   string
		want State
	}{
		{Open, model.OpRemoveSelective, Draining},
		{Open, model.OpRemoveAll, Draining},
		{Empty, model.OpRemoveAll, Empty},
		{Open, model.OpFundOneSide, Open},
		{Empty, model.OpClose, Empty},
	}
	for _, tt := range tests {
		if got := InFlight(tt.from, tt.op); got != tt.want {
			t.Fatalf("%s from %s: expected %s, got %s", tt.op, tt.from, tt.want, got)
		}
	}
	// a draining position has no further transition until it settles
	if _, err := Transition(InFlight(Open, model.OpRemoveAll), model.OpRemoveAll, false); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from draining, got %v", err)
	}
}
