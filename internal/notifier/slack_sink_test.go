package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/model"
)

type postedMessage struct {
	channel string
	text    string
}

// newSlackServer answers chat.postMessage with the given status and body and
// records every request it receives.
func newSlackServer(t *testing.T, calls *atomic.Int32, posted chan<- postedMessage, respond func(call int32, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		call := calls.Add(1)
		if posted != nil {
			posted <- postedMessage{channel: r.FormValue("channel"), text: r.FormValue("text")}
		}
		respond(call, w)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestSlackSink(serverURL string, maxRetries int) *slackSink {
	sink := NewSlackSink(config.SlackConfig{
		Token:      "xoxb-test",
		Channel:    "#rancher-errors",
		MaxRetries: maxRetries,
	}, slack.OptionAPIURL(serverURL+"/")).(*slackSink)
	sink.initialInterval = time.Millisecond
	return sink
}

func okResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"ok":true,"channel":"C0123","ts":"1714557600.000100"}`)
}

func testSlackDigest() model.Digest {
	return model.Digest{
		Title: "Rancher Errors in the Last 60 Minutes",
		Lines: []model.ReportLine{
			{Text: "Error: 2024-05-01 12:00:00 --> disk full (2 occurrences)"},
			{Text: "Error: 2024-05-01 12:05:00 --> connection refused"},
		},
	}
}

func TestSlackSink_Deliver(t *testing.T) {
	var calls atomic.Int32
	posted := make(chan postedMessage, 1)
	server := newSlackServer(t, &calls, posted, func(_ int32, w http.ResponseWriter) { okResponse(w) })

	sink := newTestSlackSink(server.URL, 2)
	require.NoError(t, sink.Deliver(context.Background(), testSlackDigest()))

	msg := <-posted
	assert.Equal(t, "#rancher-errors", msg.channel)
	assert.Equal(t, "Rancher Errors in the Last 60 Minutes\n\n"+
		"Error: 2024-05-01 12:00:00 --> disk full (2 occurrences)\n\n"+
		"Error: 2024-05-01 12:05:00 --> connection refused", msg.text)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "slack", sink.Name())
}

func TestSlackSink_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := newSlackServer(t, &calls, nil, func(call int32, w http.ResponseWriter) {
		if call < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		okResponse(w)
	})

	sink := newTestSlackSink(server.URL, 2)
	require.NoError(t, sink.Deliver(context.Background(), testSlackDigest()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSlackSink_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := newSlackServer(t, &calls, nil, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	sink := newTestSlackSink(server.URL, 1)
	err := sink.Deliver(context.Background(), testSlackDigest())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSlackSink_APIErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := newSlackServer(t, &calls, nil, func(_ int32, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	})

	sink := newTestSlackSink(server.URL, 3)
	err := sink.Deliver(context.Background(), testSlackDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSlackSink_RateLimitWaitsForRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := newSlackServer(t, &calls, nil, func(call int32, w http.ResponseWriter) {
		if call == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		okResponse(w)
	})

	sink := newTestSlackSink(server.URL, 2)
	started := time.Now()
	require.NoError(t, sink.Deliver(context.Background(), testSlackDigest()))
	assert.GreaterOrEqual(t, time.Since(started), time.Second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryAfterBackOff(t *testing.T) {
	policy := &retryAfterBackOff{BackOff: &backoff.ConstantBackOff{Interval: 10 * time.Millisecond}}
	assert.Equal(t, 10*time.Millisecond, policy.NextBackOff())

	policy.retryAfter = 3 * time.Second
	assert.Equal(t, 3*time.Second, policy.NextBackOff())
	assert.Equal(t, 10*time.Millisecond, policy.NextBackOff())

	policy.retryAfter = time.Millisecond
	assert.Equal(t, 10*time.Millisecond, policy.NextBackOff())

	stopped := &retryAfterBackOff{BackOff: &backoff.StopBackOff{}, retryAfter: time.Second}
	assert.Equal(t, backoff.Stop, stopped.NextBackOff())
}
