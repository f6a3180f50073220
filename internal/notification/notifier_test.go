package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/conf"
	ferrors "github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/testutil"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string
	titles   []string
	errs     []error
	delay    time.Duration
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	if params != nil {
		title, _ := params.Title()
		f.titles = append(f.titles, title)
	}
	return f.errs
}

func (f *fakeSender) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type deliveryRecorder struct {
	mu     sync.Mutex
	calls  int
	failed [][]string
}

func (r *deliveryRecorder) RecordDelivery(_ time.Duration, failedServices []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.failed = append(r.failed, failedServices)
}

func flaggedEvent() events.Event {
	return events.Event{
		Kind:           events.KindObservationIngested,
		ObservationID:  12,
		ScientificName: "Rafflesia arnoldii",
		Confidence:     0.42,
		AutoFlagged:    true,
	}
}

func TestReviewMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Observation #12 needs review: Rafflesia arnoldii (42%)", ReviewMessage(flaggedEvent()))
	assert.Equal(t, "Observation #3 needs review: unknown species (0%)", ReviewMessage(events.Event{ObservationID: 3}))
}

func TestNotifierSendsForFlaggedIngestions(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{errs: []error{nil}}
	rec := &deliveryRecorder{}
	n := NewWithSender(sender, []string{"ntfy"}, time.Second, rec, testutil.QuietLogger())

	require.NoError(t, n.ProcessEvent(t.Context(), flaggedEvent()))
	assert.Equal(t, []string{"Observation #12 needs review: Rafflesia arnoldii (42%)"}, sender.Messages())
	assert.Equal(t, []string{Title}, sender.titles)
	assert.Equal(t, 1, rec.calls)
	assert.Empty(t, rec.failed[0])
}

func TestNotifierIgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	n := NewWithSender(sender, []string{"ntfy"}, time.Second, nil, testutil.QuietLogger())

	unflagged := flaggedEvent()
	unflagged.AutoFlagged = false
	require.NoError(t, n.ProcessEvent(t.Context(), unflagged))

	moderated := flaggedEvent()
	moderated.Kind = events.KindObservationModerated
	require.NoError(t, n.ProcessEvent(t.Context(), moderated))

	assert.Empty(t, sender.Messages())
}

func TestNotifierPartialFailureSucceeds(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{errs: []error{nil, errors.New("403 forbidden")}}
	rec := &deliveryRecorder{}
	n := NewWithSender(sender, []string{"ntfy", "telegram"}, time.Second, rec, testutil.QuietLogger())

	require.NoError(t, n.Notify(t.Context(), "hello"))
	assert.Equal(t, []string{"telegram"}, rec.failed[0])
}

func TestNotifierTotalFailure(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{errs: []error{errors.New("connection refused")}}
	rec := &deliveryRecorder{}
	n := NewWithSender(sender, []string{"ntfy"}, time.Second, rec, testutil.QuietLogger())

	err := n.Notify(t.Context(), "hello")
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryNetwork, ferrors.CategoryOf(err))
	assert.Equal(t, []string{"ntfy"}, rec.failed[0])
}

func TestNotifierTimeout(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{delay: 500 * time.Millisecond}
	rec := &deliveryRecorder{}
	n := NewWithSender(sender, []string{"ntfy", "slack"}, 20*time.Millisecond, rec, testutil.QuietLogger())

	err := n.Notify(context.Background(), "hello")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"ntfy", "slack"}, rec.failed[0])

	// Let the abandoned send finish before the test ends
	require.Eventually(t, func() bool { return len(sender.Messages()) == 1 }, testutil.DefaultTestTimeout, 10*time.Millisecond)
}

func TestNewValidatesURLs(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.NotificationSettings{}, nil, testutil.QuietLogger())
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfiguration, ferrors.CategoryOf(err))

	_, err = New(&conf.NotificationSettings{URLs: []string{"nosuchservice://secret-token@host"}}, nil, testutil.QuietLogger())
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfiguration, ferrors.CategoryOf(err))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSchemes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"ntfy", "telegram", "unknown"},
		schemes([]string{"ntfy://ntfy.sh/review", "telegram://token@telegram?chats=1", "::bad"}))
}
