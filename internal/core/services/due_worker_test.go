package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// runnableExecution is an execution stuck in running with nothing in
// flight, the exact shape the worker exists to repair.
func runnableExecution(h *engineHarness) domain.Execution {
	exec := domain.Execution{
		ID: "e-stuck", CampaignID: "c1", ProspectID: "p1", UserID: "u1",
		CurrentStepID: "s1",
		Status:        domain.ExecutionStatusRunning,
	}
	h.repo.executions[exec.ID] = exec
	h.repo.prospects["p1"] = *testProspect()
	return exec
}

func TestDueWorker_ScanEnqueuesStuckExecution(t *testing.T) {
	h := newEngineHarness(t)
	h.seedTwoStepCampaign()
	exec := runnableExecution(h)

	w := NewDueActionWorker(testLogger(), h.repo, h.engine, DueWorkerConfig{})
	w.scan(context.Background())

	select {
	case got := <-w.queue:
		assert.Equal(t, exec.ID, got.ID)
	default:
		t.Fatal("stuck execution was not enqueued")
	}
}

func TestDueWorker_ScanSkipsExecutionWithPendingAction(t *testing.T) {
	h := newEngineHarness(t)
	h.seedTwoStepCampaign()
	exec := runnableExecution(h)
	require.NoError(t, h.repo.AddScheduledAction(context.Background(), &domain.ScheduledAction{
		ExecutionID: exec.ID, StepID: "s1", Action: domain.ActionSendInvitation,
	}))

	w := NewDueActionWorker(testLogger(), h.repo, h.engine, DueWorkerConfig{})
	w.scan(context.Background())

	select {
	case got := <-w.queue:
		t.Fatalf("execution %s enqueued despite outstanding work", got.ID)
	default:
	}
}

func TestDueWorker_RunRepairsStuckExecution(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newEngineHarness(t)
	h.seedTwoStepCampaign()
	exec := runnableExecution(h)

	w := NewDueActionWorker(testLogger(), h.repo, h.engine, DueWorkerConfig{
		Tick:          5 * time.Millisecond,
		MaxConcurrent: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.repo.execution(exec.ID).Status == domain.ExecutionStatusWaiting {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	require.NoError(t, <-done)

	stored := h.repo.execution(exec.ID)
	assert.Equal(t, domain.ExecutionStatusWaiting, stored.Status)
	require.NotNil(t, stored.WaitingJobID)
	assert.Equal(t, domain.ActionSendInvitation, h.repo.instruction(*stored.WaitingJobID).Action)
}
