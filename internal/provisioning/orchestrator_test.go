package provisioning

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/virtforge/internal/config"
	"github.com/virtforge/virtforge/internal/execute"
)

// memState is a StateRecorder that also journals its writes, so tests can
// prove ordering against observer events.
type memState struct {
	st      config.InstallState
	journal *[]string
	saveErr error
}

func (m *memState) Load() config.InstallState { return m.st }

func (m *memState) MarkCompleted(stepID string, now time.Time) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.st = config.InstallState{LastCompletedStepID: stepID, LastRun: now.UTC().Format(time.RFC3339)}
	if m.journal != nil {
		*m.journal = append(*m.journal, "state.write:"+stepID)
	}
	return nil
}

type stepFunc struct {
	run   func(ctx *Context) error
	check func(ctx *Context) error
}

func (s stepFunc) Run(ctx *Context) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx)
}

func (s stepFunc) Check(ctx *Context) error {
	if s.check == nil {
		return nil
	}
	return s.check(ctx)
}

// journalObserver appends event types to the shared journal.
type journalObserver struct {
	journal *[]string
}

func (o journalObserver) Printf(format string, v ...interface{}) {
	*o.journal = append(*o.journal, "log:"+fmt.Sprintf(format, v...))
}

func (o journalObserver) Event(e Event) {
	*o.journal = append(*o.journal, string(e.Type)+":"+e.StepID)
}

func (o journalObserver) WithFields(map[string]string) Observer { return o }

func acceptAll(context.Context, string, string) (bool, error) { return true, nil }

func newTestContext(t *testing.T, state *memState, mode execute.Mode, journal *[]string) *Context {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/virtforge.yaml")
	require.NoError(t, err)
	return &Context{
		Context:  context.Background(),
		Config:   cfg,
		State:    state,
		Gateway:  execute.NewGateway(mode, nil),
		Observer: journalObserver{journal: journal},
		Confirm:  ConfirmFunc(acceptAll),
	}
}

func registryOf(t *testing.T, steps ...StepDefinition) *Registry {
	t.Helper()
	reg, err := NewRegistry(steps...)
	require.NoError(t, err)
	return reg
}

func okStep() Step { return stepFunc{} }

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(
		StepDefinition{ID: "01", Name: "one", Handler: okStep()},
		StepDefinition{ID: "01", Name: "again", Handler: okStep()},
	)
	assert.Error(t, err)

	_, err = NewRegistry(StepDefinition{Name: "nameless"})
	assert.Error(t, err)
}

func TestResumeIndex_MatchesCompletedPrefix(t *testing.T) {
	t.Parallel()

	reg := registryOf(t,
		StepDefinition{ID: "00", Name: "a", Handler: okStep()},
		StepDefinition{ID: "01", Name: "b", Handler: okStep()},
		StepDefinition{ID: "02", Name: "c", Handler: okStep()},
	)
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	for want := 0; want < reg.Len(); want++ {
		assert.Equal(t, want, o.ResumeIndex(ctx))
		outcome, err := o.RunStep(ctx, want)
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, outcome)
	}
	assert.Equal(t, reg.Len(), o.ResumeIndex(ctx))
	assert.True(t, o.Done(ctx))
}

func TestResumeIndex_StaleStepIDResetsToZero(t *testing.T) {
	t.Parallel()

	reg := registryOf(t, StepDefinition{ID: "00", Name: "a", Handler: okStep()})
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	state := &memState{st: config.InstallState{LastCompletedStepID: "99-removed"}, journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	assert.Equal(t, 0, o.ResumeIndex(ctx))
}

func TestRunStep_DeclineIsSuccessWithoutMutation(t *testing.T) {
	t.Parallel()

	ran := false
	reg := registryOf(t, StepDefinition{ID: "00", Name: "a", Handler: stepFunc{
		run: func(*Context) error { ran = true; return nil },
	}})
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)
	ctx.Confirm = ConfirmFunc(func(context.Context, string, string) (bool, error) { return false, nil })

	outcome, err := o.RunStep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, outcome)
	assert.False(t, ran)
	assert.Empty(t, state.st.LastCompletedStepID)
	assert.Contains(t, journal, "step.declined:00")
}

func TestRunStep_FailureDoesNotAdvanceState(t *testing.T) {
	t.Parallel()

	boom := errors.New("bridge creation failed")
	reg := registryOf(t,
		StepDefinition{ID: "00", Name: "a", Handler: okStep()},
		StepDefinition{ID: "01", Name: "b", Handler: stepFunc{run: func(*Context) error { return boom }}},
	)
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	outcome, err := o.RunRemaining(ctx)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, boom)
	// step 00 completed, 01 did not advance: retry resumes at index 1.
	assert.Equal(t, "00", state.st.LastCompletedStepID)
	assert.Equal(t, 1, o.ResumeIndex(ctx))
}

func TestRunStep_MissingHandlerIsMisconfiguration(t *testing.T) {
	t.Parallel()

	reg := registryOf(t, StepDefinition{ID: "00", Name: "orphan"})
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	outcome, err := o.RunStep(ctx, 0)
	assert.Equal(t, OutcomeFailed, outcome)

	var misconfig *MisconfigurationError
	require.ErrorAs(t, err, &misconfig)
	assert.Equal(t, "00", misconfig.StepID)
	assert.Empty(t, state.st.LastCompletedStepID)
}

func TestRunByID_UnknownID(t *testing.T) {
	t.Parallel()

	reg := registryOf(t, StepDefinition{ID: "00", Name: "a", Handler: okStep()})
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	ctx := newTestContext(t, &memState{journal: &journal}, execute.Execute, &journal)

	outcome, err := o.RunByID(ctx, "nope")
	assert.Equal(t, OutcomeFailed, outcome)

	var misconfig *MisconfigurationError
	assert.ErrorAs(t, err, &misconfig)
}

func TestRunStep_RebootOnlyAfterStateWrite(t *testing.T) {
	t.Parallel()

	reg := registryOf(t,
		StepDefinition{ID: "02", Name: "kernel", Handler: okStep()},
		StepDefinition{ID: "03", Name: "network", Handler: okStep()},
		StepDefinition{ID: "04", Name: "storage", Handler: okStep()},
	)
	o := NewOrchestrator(reg, NewRebootCoordinator("02", "03"))

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	outcome, err := o.RunStep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRebootRequested, outcome)
	assert.Equal(t, "02", state.st.LastCompletedStepID)

	// The durable write must strictly precede the reboot request.
	writeAt, rebootAt := -1, -1
	for i, entry := range journal {
		switch entry {
		case "state.write:02":
			writeAt = i
		case "reboot.requested:02":
			rebootAt = i
		}
	}
	require.GreaterOrEqual(t, writeAt, 0)
	require.GreaterOrEqual(t, rebootAt, 0)
	assert.Less(t, writeAt, rebootAt)

	// Next invocation resumes past the trigger step.
	assert.Equal(t, 1, o.ResumeIndex(ctx))

	// A non-trigger step completes without a reboot.
	outcome, err = o.RunStep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestRunStep_DryRunNeverReboots(t *testing.T) {
	t.Parallel()

	reg := registryOf(t, StepDefinition{ID: "02", Name: "kernel", Handler: okStep()})
	o := NewOrchestrator(reg, NewRebootCoordinator("02"))

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Simulate, &journal)

	outcome, err := o.RunStep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.NotContains(t, journal, "reboot.requested:02")
}

func TestRunStep_StateSaveFailureIsStepFailure(t *testing.T) {
	t.Parallel()

	reg := registryOf(t, StepDefinition{ID: "00", Name: "a", Handler: okStep()})
	o := NewOrchestrator(reg, NewRebootCoordinator("00"))

	var journal []string
	state := &memState{journal: &journal, saveErr: errors.New("disk full")}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	outcome, err := o.RunStep(ctx, 0)
	assert.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)
	// No reboot may be requested when the write did not land.
	assert.NotContains(t, journal, "reboot.requested:00")
}

func TestRunRemaining_SkippedStepAdvances(t *testing.T) {
	t.Parallel()

	reg := registryOf(t,
		StepDefinition{ID: "00", Name: "a", Handler: okStep()},
		StepDefinition{ID: "01", Name: "b", Handler: stepFunc{
			run: func(*Context) error { return fmt.Errorf("%w: no passthrough nics configured", ErrNotApplicable) },
		}},
		StepDefinition{ID: "02", Name: "c", Handler: okStep()},
	)
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	state := &memState{journal: &journal}
	ctx := newTestContext(t, state, execute.Execute, &journal)

	outcome, err := o.RunRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, "02", state.st.LastCompletedStepID)
	assert.Contains(t, journal, "step.skipped:01")
}

func TestCheck_ReportsEveryStep(t *testing.T) {
	t.Parallel()

	bad := errors.New("bridge missing")
	reg := registryOf(t,
		StepDefinition{ID: "00", Name: "a", Handler: okStep()},
		StepDefinition{ID: "01", Name: "b", Handler: stepFunc{check: func(*Context) error { return bad }}},
		StepDefinition{ID: "02", Name: "orphan"},
	)
	o := NewOrchestrator(reg, NewRebootCoordinator())

	var journal []string
	ctx := newTestContext(t, &memState{journal: &journal}, execute.Execute, &journal)

	results := o.Check(ctx)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, bad)

	var misconfig *MisconfigurationError
	assert.ErrorAs(t, results[2].Err, &misconfig)
}
