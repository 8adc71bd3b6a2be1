package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approvals/internal/document/models"
	"approvals/internal/document/store"
	"approvals/internal/platform/database"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "approvals", cmd.Use)

	for _, name := range []string{"serve", "dispatch", "migrate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"log-level", "log-format", "kinds"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	dispatchCmd, _, err := cmd.Find([]string{"dispatch"})
	require.NoError(t, err)
	once := dispatchCmd.Flags().Lookup("once")
	require.NotNil(t, once)
	assert.Equal(t, "false", once.DefValue)

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "true", serveCmd.Flags().Lookup("dispatch").DefValue)
}

// sqliteEnv points the process at a fresh SQLite file with every optional
// dependency disabled.
func sqliteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "approvals.db")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("REDIS_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("KINDS_FILE", "")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateThenDispatchOnce(t *testing.T) {
	path := sqliteEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite3)")

	_, err = execute(t, "migrate")
	require.NoError(t, err, "migrate is idempotent")

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, path)
	require.NoError(t, err)
	st := store.NewSQLite(db)
	doc, err := models.NewDocument("d-1", models.KindPurchaseRequisition, "0042", "ravi.kumar@plant.example",
		&models.PurchaseRequisition{EmployeeName: "K. Barot"}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, doc))
	require.NoError(t, db.Close())

	out, err = execute(t, "dispatch", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned=1 ineligible=0 notified=1 failed=0")

	out, err = execute(t, "dispatch", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned=0 ineligible=0 notified=0 failed=0")
}

func TestDispatchOnceFailsWithoutSchema(t *testing.T) {
	sqliteEnv(t)

	_, err := execute(t, "dispatch", "--once")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestBadConfigurationExitCode(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("DATABASE_DRIVER", "oracle")

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(assert.AnError))
	assert.Equal(t, ExitConfigError, ExitCode(WrapExitError(ExitConfigError, "x", assert.AnError)))
}
