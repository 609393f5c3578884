package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	rangesPath := filepath.Join(dir, "ranges.yaml")
	require.NoError(t, os.WriteFile(rangesPath, []byte(`
ranges:
  - metric: heart_rate
    min: 60
    max: 100
  - metric: oxygen_saturation
    min: 95
    max: 100
`), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
storage:
  path: %s
logging:
  level: error
analysis:
  ranges_file: %s
redis:
  addr: %s
`, filepath.Join(dir, "vitals.db"), rangesPath, mr.Addr())), 0o644))
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "vitalwatch version dev\n", out)
}

func TestContacts_AddAndList(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "contacts", "add",
		"--subject", "p1", "--name", "Dana", "--relationship", "sibling", "--phone", "+15550100")
	require.NoError(t, err)
	assert.Contains(t, out, "Contact Dana added")

	out, err = execute(t, "--config", cfg, "contacts", "list", "--subject", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Dana")
	assert.Contains(t, out, "sibling")
	assert.Contains(t, out, "+15550100")
}

func TestContacts_AddRequiresAddress(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "--config", cfg, "contacts", "add",
		"--subject", "p1", "--name", "Nobody", "--relationship", "", "--phone", "", "--email", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone number or an email")
}

func TestPrefsSet_RejectsBadQuietHours(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "--config", cfg, "prefs", "set",
		"--subject", "p1", "--quiet-start", "25:00", "--quiet-end", "07:00")
	require.Error(t, err)

	_, err = execute(t, "--config", cfg, "prefs", "set",
		"--subject", "p1", "--quiet-start", "22:00", "--quiet-end", "")
	require.Error(t, err)

	out, err := execute(t, "--config", cfg, "prefs", "set",
		"--subject", "p1", "--email", "p1@example.com", "--quiet-start", "22:00", "--quiet-end", "07:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Preferences saved for p1")
}

func TestMedications_CheckDue(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "medications", "add",
		"--subject", "p1", "--name", "Lisinopril", "--dosage", "10mg",
		"--frequency", "twice_daily", "--start", "2026-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Medication Lisinopril added (twice_daily")

	out, err = execute(t, "--config", cfg, "check-due", "--subject", "p1", "--at", "2026-06-02T21:03:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "Lisinopril")
	assert.Contains(t, out, "21:00")

	out, err = execute(t, "--config", cfg, "check-due", "--subject", "p1", "--at", "2026-06-02T15:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "No doses due.")
}

func TestMedications_UnknownFrequency(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "--config", cfg, "medications", "add",
		"--subject", "p1", "--name", "X", "--frequency", "hourly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown medication frequency")
}

func TestSubmit_ListAndAck(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "submit",
		"--subject", "p1", "--hr", "150", "--metric", "oxygen_saturation=90",
		"--at", "2026-06-01T12:00:00Z")
	require.NoError(t, err)

	var res model.EvaluationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.StatusCritical, res.Status)
	require.Len(t, res.AlertsCreated, 2)

	out, err = execute(t, "--config", cfg, "alerts", "list", "--subject", "p1", "--open")
	require.NoError(t, err)
	assert.Contains(t, out, res.AlertsCreated[0].ID)
	assert.Contains(t, out, "critical")

	out, err = execute(t, "--config", cfg, "ack", res.AlertsCreated[0].ID, "--actor", "nurse")
	require.NoError(t, err)
	assert.Contains(t, out, "acknowledged")

	_, err = execute(t, "--config", cfg, "ack", "no-such-alert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSOS(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "--config", cfg, "contacts", "add",
		"--subject", "p9", "--name", "Dana", "--phone", "+15550100", "--email", "")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "sos", "--subject", "p9", "--message", "cannot stand up")
	require.NoError(t, err)

	var res model.SOSResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.KindSOS, res.Alert.Kind)
	assert.Equal(t, "SOS requested: cannot stand up", res.Alert.Message)
	require.NotEmpty(t, res.NotificationsSent)
	assert.Equal(t, model.ChannelInApp, res.NotificationsSent[0].Channel)
	assert.True(t, res.NotificationsSent[0].Success)

	out, err = execute(t, "--config", cfg, "alerts", "list", "--subject", "p9")
	require.NoError(t, err)
	assert.Contains(t, out, res.Alert.ID)
}

func TestParseMetric(t *testing.T) {
	name, v, err := parseMetric(" respiratory_rate = 18 ")
	require.NoError(t, err)
	assert.Equal(t, "respiratory_rate", name)
	assert.Equal(t, 18.0, v)

	_, _, err = parseMetric("no-equals")
	assert.Error(t, err)
	_, _, err = parseMetric("hr=fast")
	assert.Error(t, err)
}
