package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
)

func TestEngine_TriggerSOSNotifiesEveryContact(t *testing.T) {
	e := newEnv(t, nil)
	e.addContacts(t, "s1")
	ctx := context.Background()

	_, err := e.eng.SubmitReading(ctx, "s1", normalVitals(), t0)
	require.NoError(t, err)
	e.eng.SetClock(func() time.Time { return t0.Add(10 * time.Minute) })

	res, err := e.eng.TriggerSOS(ctx, " s1 ", "  fell in the kitchen ")
	require.NoError(t, err)

	assert.Equal(t, "s1", res.SubjectID)
	assert.Equal(t, model.KindSOS, res.Alert.Kind)
	assert.Equal(t, model.SeverityCritical, res.Alert.Severity)
	assert.Equal(t, "SOS requested: fell in the kitchen", res.Alert.Message)
	assert.False(t, res.Alert.Acknowledged)

	assert.Equal(t, 4, countAudience(res.NotificationsSent, model.AudienceEmergencyContact))
	assert.Equal(t, 1, countAudience(res.NotificationsSent, model.AudienceSubject))
	for _, a := range res.NotificationsSent {
		assert.Equal(t, res.Alert.ID, a.AlertID)
	}

	msg := e.sms.last().msg
	assert.Equal(t, notify.TitleSOS, msg.Title)
	assert.True(t, msg.Urgent)
	assert.Contains(t, msg.Body, "Message: fell in the kitchen")
	assert.Contains(t, msg.Body, "heart rate: 72")
	assert.Contains(t, msg.Body, "Time: 2026-06-01T09:10:00Z")
}

func TestEngine_TriggerSOSIsNeverDeduplicated(t *testing.T) {
	e := newEnv(t, nil)
	e.addContacts(t, "s1")
	ctx := context.Background()
	e.eng.SetClock(func() time.Time { return t0 })

	first, err := e.eng.TriggerSOS(ctx, "s1", "")
	require.NoError(t, err)
	second, err := e.eng.TriggerSOS(ctx, "s1", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Alert.ID, second.Alert.ID)
	assert.Equal(t, "SOS requested", second.Alert.Message)

	stored, err := e.db.ListAlerts(ctx, model.AlertFilter{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, 4, e.sms.count())
	assert.NotContains(t, e.sms.last().msg.Body, "Latest vital signs")
}

func TestEngine_TriggerSOSWithoutContactsStillNotifiesInApp(t *testing.T) {
	e := newEnv(t, nil)

	res, err := e.eng.TriggerSOS(context.Background(), "s1", "help")
	require.NoError(t, err)
	require.Len(t, res.NotificationsSent, 1)
	assert.Equal(t, model.ChannelInApp, res.NotificationsSent[0].Channel)
	assert.Equal(t, notify.TitleSOS, e.inApp.last().msg.Title)
}

func TestEngine_TriggerSOSFailures(t *testing.T) {
	flaky := &flakyContacts{fail: 1}
	e := newEnv(t, func(s storage.Store) storage.Store {
		flaky.Store = s
		return flaky
	})
	e.addContacts(t, "s1")
	ctx := context.Background()

	_, err := e.eng.TriggerSOS(ctx, "", "help")
	assert.True(t, engine.IsKind(err, engine.ConfigurationError))

	res, err := e.eng.TriggerSOS(ctx, "s1", "help")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, engine.PersistenceFailure, engine.KindOf(err))

	stored, err := e.db.ListAlerts(ctx, model.AlertFilter{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Zero(t, e.inApp.count())

	res, err = e.eng.TriggerSOS(ctx, "s1", "help")
	require.NoError(t, err)
	assert.Equal(t, 4, countAudience(res.NotificationsSent, model.AudienceEmergencyContact))
}
