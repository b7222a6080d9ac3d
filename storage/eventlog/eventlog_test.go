package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripartite/core/events"
	"tripartite/core/types"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	log.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return log
}

func TestAppendAndQueryByAgreement(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	_, err := log.Append(ctx, &types.Event{Type: "arbitration.agreement_created", Attributes: map[string]string{"id": "0"}})
	require.NoError(t, err)
	_, err = log.Append(ctx, &types.Event{Type: "arbitration.agreement_created", Attributes: map[string]string{"id": "1"}})
	require.NoError(t, err)
	rec, err := log.Append(ctx, &types.Event{Type: "arbitration.status_changed", Attributes: map[string]string{"id": "0", "to": "execution"}})
	require.NoError(t, err)
	require.NotEmpty(t, rec.UID)
	require.NotNil(t, rec.AgreementID)
	require.EqualValues(t, 0, *rec.AgreementID)

	records, err := log.ByAgreement(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "arbitration.agreement_created", records[0].Type)
	require.Equal(t, "execution", records[1].Attributes["to"])
	require.Less(t, records[0].Sequence, records[1].Sequence)
	require.Equal(t, int64(1_700_000_000), records[1].CreatedAt.Unix())
}

func TestSincePaginates(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, &types.Event{Type: "arbitration.payout"})
		require.NoError(t, err)
	}
	first, err := log.Since(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Nil(t, first[0].AgreementID)

	rest, err := log.Since(ctx, first[2].Sequence, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
}

func TestEmitPersistsEvents(t *testing.T) {
	log := openTestLog(t)
	var emitter events.Emitter = log
	emitter.Emit(testEvent{evt: &types.Event{Type: "arbitration.dispute_raised", Attributes: map[string]string{"id": "7"}}})
	emitter.Emit(nil)

	records, err := log.ByAgreement(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Zero(t, log.Failures())
}

func TestEmitCountsFailures(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Close())
	log.Emit(testEvent{evt: &types.Event{Type: "arbitration.payout"}})
	require.EqualValues(t, 1, log.Failures())
}

func TestAppendRejectsUntypedEvents(t *testing.T) {
	log := openTestLog(t)
	_, err := log.Append(context.Background(), &types.Event{})
	require.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrPathRequired)
}
