package timers

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureDoer struct {
	mu     sync.Mutex
	bodies []string
}

func (c *captureDoer) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, string(body))
	c.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func (c *captureDoer) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestSet_ValidatesClock(t *testing.T) {
	s := NewScheduler("")

	_, err := s.Set("not-a-clock")
	require.Error(t, err)

	_, err = s.Set("00:00:00")
	require.Error(t, err)
}

func TestSet_ReturnsHandleAndLists(t *testing.T) {
	s := NewScheduler("")

	timer, err := s.Set("00:05:00")
	require.NoError(t, err)
	require.NotEmpty(t, timer.ID)
	require.Equal(t, "00:05:00", timer.Clock)
	require.Equal(t, 300, timer.Seconds)

	listed := s.List()
	require.Len(t, listed, 1)
	require.Equal(t, timer.ID, listed[0].ID)
}

func TestList_OrderedByExpiry(t *testing.T) {
	s := NewScheduler("")

	later, err := s.Set("01:00:00")
	require.NoError(t, err)
	sooner, err := s.Set("00:01:00")
	require.NoError(t, err)

	listed := s.List()
	require.Len(t, listed, 2)
	require.Equal(t, sooner.ID, listed[0].ID)
	require.Equal(t, later.ID, listed[1].ID)
}

func TestCancel(t *testing.T) {
	s := NewScheduler("")

	timer, err := s.Set("00:10:00")
	require.NoError(t, err)

	require.True(t, s.Cancel(timer.ID))
	require.Empty(t, s.List())
	require.False(t, s.Cancel(timer.ID))
	require.False(t, s.Cancel("unknown"))
}

func TestExpiry_PostsCallbackAndRemoves(t *testing.T) {
	doer := &captureDoer{}
	s := NewScheduler("http://localhost/timer-finished", WithHTTPClient(doer))

	timer, err := s.Set("1")
	require.NoError(t, err)
	require.Equal(t, "00:00:01", timer.Clock)

	require.Eventually(t, func() bool { return doer.calls() == 1 }, 3*time.Second, 50*time.Millisecond)
	require.Contains(t, doer.bodies[0], `"time":"00:00:01"`)
	require.Contains(t, doer.bodies[0], `"seconds":1`)

	require.Eventually(t, func() bool { return len(s.List()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestCancel_SuppressesCallback(t *testing.T) {
	doer := &captureDoer{}
	s := NewScheduler("http://localhost/timer-finished", WithHTTPClient(doer))

	timer, err := s.Set("1")
	require.NoError(t, err)
	require.True(t, s.Cancel(timer.ID))

	time.Sleep(1500 * time.Millisecond)
	require.Zero(t, doer.calls())
}
