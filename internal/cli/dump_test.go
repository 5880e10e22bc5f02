package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/roach88/idxstore/internal/config"
	"github.com/roach88/idxstore/internal/encrypt"
	"github.com/roach88/idxstore/internal/engine"
	"github.com/roach88/idxstore/internal/sqlitedb"
	"github.com/roach88/idxstore/internal/store"
	"github.com/roach88/idxstore/internal/testutil"
)

var defsDir = filepath.Join("..", "harness", "testdata", "defs")

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Backend = backend
	cfg.Path = filepath.Join(t.TempDir(), "records.db")
	cfg.Keyring.Service = "idxstore-test"
	cfg.Keyring.User = t.Name()
	return cfg
}

// seedPeople writes people to the SQLite file of cfg, encrypting Secret
// with the keyring secret.
func seedPeople(t *testing.T, cfg *config.Config, people ...*testutil.Person) {
	t.Helper()
	db, err := sqlitedb.Open(cfg.Path)
	require.NoError(t, err)
	eng := engine.New(db)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		require.NoError(t, eng.Close())
	}()

	secret, err := keyringSource(cfg).Secret()
	require.NoError(t, err)
	m := store.New(eng, testutil.PeopleSpec(), store.WithHook(encrypt.NewAESGCM(), secret))
	defer m.Close()

	o, err := m.OpenDatabaseAsync(t.Context())
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)

	s, err := store.Bind(m, testutil.People)
	require.NoError(t, err)
	o, err = s.AddRange(t.Context(), people)
	require.NoError(t, err)
	require.False(t, o.Failed, o.Message)
}

func bob() *testutil.Person {
	return &testutil.Person{GUID: uuid.New(), Name: "Bob", Email: "bob@x.org", Age: 31, Secret: "s3cret"}
}

func TestDump_PrintsStoredRows(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t, config.BackendSQLite)
	seedPeople(t, cfg, bob(), &testutil.Person{GUID: uuid.New(), Name: "carla", Email: "carla@x.org", Age: 25})

	out, err := execute(t, NewDumpCommand(&RootOptions{Format: "text", Config: cfg}), defsDir, "Directory", "Person")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"Id":1`)
	assert.Contains(t, lines[0], `"Name":"Bob"`)
	assert.NotContains(t, lines[0], "s3cret")
	assert.Contains(t, lines[1], `"Name":"carla"`)
}

func TestDump_DecryptsNamedColumns(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t, config.BackendSQLite)
	seedPeople(t, cfg, bob())

	out, err := execute(t, NewDumpCommand(&RootOptions{Format: "json", Config: cfg}),
		defsDir, "Directory", "Person", "--decrypt", "Secret")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Database string           `json:"database"`
			Store    string           `json:"store"`
			Rows     []map[string]any `json:"rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Directory", resp.Data.Database)
	require.Len(t, resp.Data.Rows, 1)
	assert.Equal(t, "s3cret", resp.Data.Rows[0]["Secret"])
	assert.Equal(t, "bob@x.org", resp.Data.Rows[0]["Email"])
}

func TestDump_Errors(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t, config.BackendMemory)

	out, err := execute(t, NewDumpCommand(&RootOptions{Format: "text", Config: cfg}), defsDir, "Nope", "Person")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [UNKNOWN_DATABASE]")

	_, err = execute(t, NewDumpCommand(&RootOptions{Format: "text", Config: cfg}), defsDir, "Directory", "Animal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store not declared by database")

	_, err = execute(t, NewDumpCommand(&RootOptions{Format: "text", Config: cfg}), "/nonexistent/defs", "Directory", "Person")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005")
}

func TestDump_KeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)
	cfg := testConfig(t, config.BackendMemory)

	_, err := execute(t, NewDumpCommand(&RootOptions{Format: "text", Config: cfg}),
		defsDir, "Directory", "Person", "--decrypt", "Secret")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDecrypt(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t, config.BackendMemory)

	secret, err := keyringSource(cfg).Secret()
	require.NoError(t, err)
	ciphertext, err := encrypt.NewAESGCM().Encrypt(t.Context(), "s3cret", secret)
	require.NoError(t, err)

	out, err := execute(t, NewDecryptCommand(&RootOptions{Format: "text", Config: cfg}), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "s3cret\n", out)

	out, err = execute(t, NewDecryptCommand(&RootOptions{Format: "text", Config: cfg}), "bm90IGEgY2lwaGVydGV4dA==")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [DECRYPT_FAILED]")
}

func TestEstimate(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	cfg.Quota = 4 << 20

	out, err := execute(t, NewEstimateCommand(&RootOptions{Format: "json", Config: cfg}))
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   EstimateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sqlite", resp.Data.Backend)
	assert.Equal(t, int64(4<<20), resp.Data.QuotaBytes)
	assert.InDelta(t, 4.0, resp.Data.QuotaMB, 1e-9)
}
