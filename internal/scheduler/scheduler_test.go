package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/events"
)

type fakeJob struct {
	name string
	err  error
	runs int
}

func (j *fakeJob) Run() error { j.runs++; return j.err }
func (j *fakeJob) Name() string {
	if j.name == "" {
		return "fake"
	}
	return j.name
}

func TestRunNowExecutesJob(t *testing.T) {
	s := New(nil, zerolog.Nop())

	job := &fakeJob{}
	err := s.RunNow(job)

	require.NoError(t, err)
	assert.Equal(t, 1, job.runs)
}

func TestRunNowReturnsJobError(t *testing.T) {
	s := New(nil, zerolog.Nop())

	job := &fakeJob{err: errors.New("boom")}
	err := s.RunNow(job)

	assert.EqualError(t, err, "boom")
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(nil, zerolog.Nop())

	err := s.AddJob("not a schedule", &fakeJob{})
	assert.Error(t, err)
}

func TestAddJobAcceptsCronAndDescriptors(t *testing.T) {
	s := New(nil, zerolog.Nop())

	require.NoError(t, s.AddJob("*/5 * * * *", &fakeJob{name: "five"}))
	require.NoError(t, s.AddJob("@every 30s", &fakeJob{name: "thirty"}))
	require.NoError(t, s.AddJob("@daily", &fakeJob{name: "daily"}))
}

func TestJobLifecycleEventsPublished(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	defer bus.Close()

	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	s := New(bus, zerolog.Nop())

	require.NoError(t, s.RunNow(&fakeJob{name: "ok"}))
	_ = s.RunNow(&fakeJob{name: "bad", err: errors.New("boom")})

	var got []events.EventType
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case evt := <-ch:
			got = append(got, evt.Type)
		case <-timeout:
			t.Fatalf("expected 2 events, got %d", len(got))
		}
	}

	assert.Equal(t, events.JobCompleted, got[0])
	assert.Equal(t, events.JobFailed, got[1])
}
