package domain

import (
	"testing"
)

func TestSagaState_HappyPathTransitions(t *testing.T) {
	state := NewSagaState("saga-1", "order-1", "idem-1", 3)

	if state.Status != SagaStatusInProgress {
		t.Fatalf("new saga status = %s, want IN_PROGRESS", state.Status)
	}
	if state.Step != StepPricingRequested {
		t.Fatalf("new saga step = %s, want PRICING_REQUESTED", state.Step)
	}

	steps := []SagaStep{StepInventoryRequested, StepCardValidationRequested, StepPaymentRequested, StepDeliveryRequested}
	for _, step := range steps {
		if err := state.Advance(step); err != nil {
			t.Fatalf("Advance(%s): %v", step, err)
		}
	}

	if err := state.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if state.CompletedAt == nil {
		t.Fatal("Complete did not set CompletedAt")
	}
}

func TestSagaState_TerminalStatusesAreImmutable(t *testing.T) {
	terminalSetups := map[string]func(*SagaState) error{
		"completed": func(s *SagaState) error { return s.Complete() },
		"failed":    func(s *SagaState) error { return s.Fail("boom") },
		"compensated": func(s *SagaState) error {
			if err := s.BeginCompensation("boom"); err != nil {
				return err
			}
			return s.FinishCompensation()
		},
	}

	for name, setup := range terminalSetups {
		t.Run(name, func(t *testing.T) {
			state := NewSagaState("saga-1", "order-1", "idem-1", 3)
			if err := setup(state); err != nil {
				t.Fatalf("setup: %v", err)
			}
			before := state.Status

			if err := state.Advance(StepPaymentRequested); err != ErrSagaTerminal {
				t.Errorf("Advance on terminal saga: err = %v, want ErrSagaTerminal", err)
			}
			if err := state.Complete(); err != ErrSagaTerminal {
				t.Errorf("Complete on terminal saga: err = %v, want ErrSagaTerminal", err)
			}
			if err := state.Fail("again"); err != ErrSagaTerminal {
				t.Errorf("Fail on terminal saga: err = %v, want ErrSagaTerminal", err)
			}
			if err := state.BeginCompensation("again"); err != ErrSagaTerminal {
				t.Errorf("BeginCompensation on terminal saga: err = %v, want ErrSagaTerminal", err)
			}
			if state.Status != before {
				t.Errorf("terminal status changed from %s to %s", before, state.Status)
			}
		})
	}
}

func TestSagaState_CompensationFlow(t *testing.T) {
	state := NewSagaState("saga-1", "order-1", "idem-1", 3)
	if err := state.Advance(StepPaymentRequested); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if err := state.BeginCompensation("payment declined"); err != nil {
		t.Fatalf("BeginCompensation: %v", err)
	}
	if state.Status != SagaStatusCompensating {
		t.Fatalf("status = %s, want COMPENSATING", state.Status)
	}
	if !state.CompensationRequired {
		t.Fatal("CompensationRequired not set")
	}
	if state.ErrorMessage != "payment declined" {
		t.Fatalf("error message = %q", state.ErrorMessage)
	}

	if err := state.FinishCompensation(); err != nil {
		t.Fatalf("FinishCompensation: %v", err)
	}
	if state.Status != SagaStatusCompensated {
		t.Fatalf("status = %s, want COMPENSATED", state.Status)
	}
	if !state.CompensationDone {
		t.Fatal("CompensationDone not set")
	}
}
