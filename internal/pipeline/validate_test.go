package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/huntforge/huntforge/internal/attack"
	"github.com/huntforge/huntforge/internal/pipeline/state"
)

func stateWithResult(t *testing.T, stage state.Stage, v any) state.State {
	t.Helper()
	raw, err := state.Result(v)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	st := state.Default()
	st.Results = map[string]json.RawMessage{string(stage): raw}
	return st
}

func TestValidateResolvesTechniques(t *testing.T) {
	st := stateWithResult(t, state.StageExtract, extractPayload{
		Content: "The actor abuses T1546.003 and T1047 for persistence on Windows hosts.",
	})
	ex := &ValidateStage{Resolver: attack.NewStaticResolver()}

	payload, next, err := ex.Execute(context.Background(), 1, st, "")
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if next != state.StageGenerate {
		t.Errorf("next = %q, want generate", next)
	}
	p := payload.(validatePayload)
	if len(p.TechniqueIDs) != 2 {
		t.Errorf("technique_ids = %v, want 2", p.TechniqueIDs)
	}
	if !p.Valid {
		t.Error("valid = false")
	}
}

func TestValidateRejectsShortContent(t *testing.T) {
	st := stateWithResult(t, state.StageExtract, extractPayload{Content: "too thin"})
	ex := &ValidateStage{}

	if _, _, err := ex.Execute(context.Background(), 1, st, ""); err == nil {
		t.Fatal("Execute() should reject short content")
	}
}

func TestValidateRequiresExtractResult(t *testing.T) {
	ex := &ValidateStage{}
	if _, _, err := ex.Execute(context.Background(), 1, state.Default(), ""); err == nil {
		t.Fatal("Execute() should fail without an extract result")
	}
}

func TestValidateNoTechniquesStillValid(t *testing.T) {
	st := stateWithResult(t, state.StageExtract, extractPayload{
		Content: "APT29 uses WMI.",
	})
	ex := &ValidateStage{Resolver: attack.NewStaticResolver()}

	payload, _, err := ex.Execute(context.Background(), 1, st, "")
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	p := payload.(validatePayload)
	if len(p.TechniqueIDs) != 0 {
		t.Errorf("technique_ids = %v, want none", p.TechniqueIDs)
	}
	if !p.Valid {
		t.Error("content without technique references should still validate")
	}
}
