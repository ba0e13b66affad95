package helpers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	errExact := fmt.Errorf("exact")
	cases := []struct {
		name   string
		input  []error
		expect string
	}{
		{"empty", nil, ""},
		{"all-nil", []error{nil, nil}, ""},
		{"one", []error{nil, errExact}, "exact"},
		{"many", []error{fmt.Errorf("a"), nil, fmt.Errorf("b")}, "a\nb"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			err := FoldErrors(c.input)
			if c.expect == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, c.expect, err.Error())
		})
	}
	assert.Equal(t, errExact, errors.Cause(FoldErrors([]error{errors.Annotate(errExact, "context")})))
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	b := Backoff{Min: 10 * time.Millisecond, Max: 40 * time.Millisecond, K: 2}
	assert.Equal(t, time.Duration(0), b.DelayBefore())
	b.Failure()
	assert.InDelta(t, float64(10*time.Millisecond), float64(b.DelayBefore()), float64(2*time.Millisecond))
	b.Failure()
	b.Failure()
	b.Failure()
	assert.True(t, b.DelayBefore() <= 40*time.Millisecond)
	b.Reset()
	assert.Equal(t, time.Duration(0), b.DelayBefore())

	slow := Backoff{Min: time.Hour, K: 2}
	slow.Update(false)
	assert.True(t, slow.DelayBefore() > 59*time.Minute)
	slow.Update(true)
	assert.Equal(t, time.Duration(0), slow.DelayBefore())
}

func TestIntSecondDefault(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 5*time.Second, IntSecondDefault(0, 5*time.Second))
	assert.Equal(t, 5*time.Second, IntSecondDefault(-1, 5*time.Second))
	assert.Equal(t, 2*time.Second, IntSecondDefault(2, 5*time.Second))
}

func TestStopWait(t *testing.T) {
	t.Parallel()
	a := alive.NewAlive()
	require.True(t, a.Add(1))
	assert.False(t, StopWait(a, 10*time.Millisecond))
	a.Done()
	assert.True(t, StopWait(a, time.Second))
}

func TestMockHTTP(t *testing.T) {
	t.Parallel()
	m := &MockHTTP{Body: []byte("ok")}
	client := &http.Client{Transport: m}
	resp, err := client.Post("http://mock/write?db=data", "text/plain", strings.NewReader("temp c=235i"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rs := m.Requests()
	require.Equal(t, 1, len(rs))
	assert.Equal(t, "POST", rs[0].Method)
	assert.Equal(t, "http://mock/write?db=data", rs[0].URL)
	assert.Equal(t, "temp c=235i", string(rs[0].Body))
}
