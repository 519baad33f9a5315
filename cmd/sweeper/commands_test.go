package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/application/sweeper"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubRunner struct {
	report *sweeper.Report
	err    error
	calls  int
}

func (s *stubRunner) Run(context.Context) (*sweeper.Report, error) {
	s.calls++
	return s.report, s.err
}

func cleanReport() *sweeper.Report {
	return &sweeper.Report{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Passes: []sweeper.PassReport{
			{Pass: sweeper.PassTrialWarning, Scanned: 2, Notified: 2},
			{Pass: sweeper.PassTrialExpiry, Scanned: 1, Transitioned: 1, Notified: 1},
			{Pass: sweeper.PassSubscriptionExpiry},
		},
	}
}

func TestSweepOnce(t *testing.T) {
	partial := cleanReport()
	partial.Passes[1].Failures = []sweeper.Failure{
		{Pass: sweeper.PassTrialExpiry, SubscriptionID: uuid.New(), Err: errors.New("conflict")},
	}

	tests := []struct {
		name     string
		runner   *stubRunner
		wantCode int
	}{
		{"clean run", &stubRunner{report: cleanReport()}, exitOK},
		{"record failures", &stubRunner{report: partial}, exitPartial},
		{"run aborted", &stubRunner{report: cleanReport(), err: context.DeadlineExceeded}, exitFatal},
		{"no report", &stubRunner{err: errors.New("db down")}, exitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sweepOnce(context.Background(), tt.runner, zap.NewNop())
			assert.Equal(t, tt.wantCode, exitCode(err))
			assert.Equal(t, 1, tt.runner.calls)
		})
	}
}

func TestSweepOnce_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	report := cleanReport()
	id := uuid.New()
	report.Passes[2].Failures = []sweeper.Failure{{Pass: sweeper.PassSubscriptionExpiry, SubscriptionID: id, Err: errors.New("boom")}}

	err := sweepOnce(context.Background(), &stubRunner{report: report}, zap.New(core))
	assert.ErrorIs(t, err, errPartial)
	assert.Equal(t, 3, logs.FilterMessage("Sweep pass finished").Len())

	failed := logs.FilterMessage("Sweep record failed").All()
	if assert.Len(t, failed, 1) {
		assert.Equal(t, id.String(), failed[0].ContextMap()["subscription_id"])
	}
}

func TestExecute(t *testing.T) {
	t.Run("unknown command is fatal", func(t *testing.T) {
		assert.Equal(t, exitFatal, execute(newRootCommand("test"), []string{"nope"}))
	})

	t.Run("run rejects arguments", func(t *testing.T) {
		assert.Equal(t, exitFatal, execute(newRootCommand("test"), []string{"run", "extra"}))
	})

	t.Run("version", func(t *testing.T) {
		assert.Equal(t, exitOK, execute(newRootCommand("test"), []string{"--version"}))
	})
}
