package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/adfyer/apiserver/config"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/mq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resetMessage = Message{To: "a@b.com", Subject: "Password Reset", Body: "token"}

func TestDispatcher_Success(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	var got []Message
	var mu sync.Mutex
	sender := SenderFunc(func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
		return nil
	})

	d := NewDispatcher(sender, DispatcherOptions{Metrics: metrics})
	d.Dispatch(context.Background(), resetMessage)
	d.Wait()

	assert.Equal(t, []Message{resetMessage}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sent))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.failed))
}

func TestDispatcher_FailureIsReportedNotReturned(t *testing.T) {
	metrics := NewMetrics(nil)
	boom := errors.New("smtp down")

	var failedWith error
	d := NewDispatcher(SenderFunc(func(context.Context, Message) error { return boom }), DispatcherOptions{
		Metrics:   metrics,
		OnFailure: func(_ Message, err error) { failedWith = err },
	})
	d.Dispatch(context.Background(), resetMessage)
	d.Wait()

	assert.ErrorIs(t, failedWith, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failed))
}

func TestDispatcher_DetachedFromCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sendErr error
	d := NewDispatcher(SenderFunc(func(ctx context.Context, _ Message) error {
		sendErr = ctx.Err()
		return nil
	}), DispatcherOptions{})
	d.Dispatch(ctx, resetMessage)
	d.Wait()

	assert.NoError(t, sendErr)
}

func TestDispatcher_Timeout(t *testing.T) {
	var failedWith error
	d := NewDispatcher(SenderFunc(func(ctx context.Context, _ Message) error {
		<-ctx.Done()
		return ctx.Err()
	}), DispatcherOptions{
		Timeout:   10 * time.Millisecond,
		OnFailure: func(_ Message, err error) { failedWith = err },
	})
	d.Dispatch(context.Background(), resetMessage)
	d.Wait()

	assert.ErrorIs(t, failedWith, context.DeadlineExceeded)
}

func TestDispatcher_RecoversSenderPanic(t *testing.T) {
	var failedWith error
	d := NewDispatcher(SenderFunc(func(context.Context, Message) error { panic("bad sender") }), DispatcherOptions{
		OnFailure: func(_ Message, err error) { failedWith = err },
	})
	d.Dispatch(context.Background(), resetMessage)
	d.Wait()

	require.Error(t, failedWith)
	assert.Contains(t, failedWith.Error(), "bad sender")
}

func TestMailtrapSender(t *testing.T) {
	var (
		gotAuth string
		gotBody mailtrapRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	sender := NewMailtrapSender(config.MailtrapConfig{
		Token:     "tok",
		Endpoint:  srv.URL,
		FromEmail: "mailtrap@codipher.com",
		FromName:  "Adfyer",
		Category:  "Password Reset",
	}, srv.Client())

	require.NoError(t, sender.Send(context.Background(), resetMessage))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "mailtrap@codipher.com", gotBody.From.Email)
	assert.Equal(t, []mailtrapAddress{{Email: "a@b.com"}}, gotBody.To)
	assert.Equal(t, "Password Reset", gotBody.Subject)
	assert.Equal(t, "token", gotBody.Text)
}

func TestMailtrapSender_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":["Unauthorized"]}`)
	}))
	defer srv.Close()

	sender := NewMailtrapSender(config.MailtrapConfig{Endpoint: srv.URL}, srv.Client())
	err := sender.Send(context.Background(), resetMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type fakePublisher struct {
	data  []byte
	attrs map[string]string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	p.data = data
	p.attrs = attrs
	return "id-1", p.err
}

func TestQueueSenderAndHandler(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewQueueSender(pub).Send(context.Background(), resetMessage))
	assert.Equal(t, "application/json", pub.attrs[mq.ContentTypeAttribute])

	var delivered Message
	metrics := NewMetrics(nil)
	handler := QueueHandler(SenderFunc(func(_ context.Context, msg Message) error {
		delivered = msg
		return nil
	}), logging.Discard(), metrics)

	require.NoError(t, handler(context.Background(), mq.Message{ID: "id-1", Data: pub.data}))
	assert.Equal(t, resetMessage, delivered)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sent))
}

func TestQueueSender_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	err := NewQueueSender(pub).Send(context.Background(), resetMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestQueueHandler_DropsGarbageAndRetriesFailures(t *testing.T) {
	boom := errors.New("mailtrap down")
	handler := QueueHandler(SenderFunc(func(context.Context, Message) error { return boom }), logging.Discard(), nil)

	assert.NoError(t, handler(context.Background(), mq.Message{ID: "bad", Data: []byte("not json")}))
	assert.NoError(t, handler(context.Background(), mq.Message{ID: "empty", Data: []byte(`{"to":""}`)}))

	data, err := json.Marshal(resetMessage)
	require.NoError(t, err)
	assert.ErrorIs(t, handler(context.Background(), mq.Message{ID: "ok", Data: data}), boom)
}

func TestMessageString_OmitsBody(t *testing.T) {
	assert.NotContains(t, resetMessage.String(), resetMessage.Body)
}

func TestLogSender_RedactsBodyByDefault(t *testing.T) {
	msg := Message{To: "a@b.com", Subject: "Password Reset", Body: "reset token 0123abcd"}

	var redacted bytes.Buffer
	require.NoError(t, NewLogSender(logging.Setup("json", "debug", &redacted), false).Send(context.Background(), msg))
	assert.Contains(t, redacted.String(), "notification sent to log")
	assert.NotContains(t, redacted.String(), "0123abcd")

	var verbose bytes.Buffer
	require.NoError(t, NewLogSender(logging.Setup("json", "debug", &verbose), true).Send(context.Background(), msg))
	assert.Contains(t, verbose.String(), "0123abcd")
}
