package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwrk-planet/roomchat/config"
	"github.com/cwrk-planet/roomchat/internal/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const memoryConfig = `
http:
  addr: "127.0.0.1:0"
store:
  driver: memory
auth:
  publicKeyPath: /does/not/exist.pem
logging:
  level: warn
`

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", writeConfig(t, memoryConfig)})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to migrate")
}

func TestServe_FailsWithoutKey(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"serve", "--config", writeConfig(t, memoryConfig)})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
}

func TestSetup_BadLevel(t *testing.T) {
	_, err := setup(writeConfig(t, memoryConfig+"  debug: false\n"))
	require.NoError(t, err)

	bad := `
http:
  addr: ":1"
store:
  driver: memory
auth:
  publicKeyPath: k
logging:
  level: loud
`
	_, err = setup(writeConfig(t, bad))
	assert.Error(t, err)
}

func TestOpenStore_Memory(t *testing.T) {
	cfg, err := config.Parse([]byte(memoryConfig))
	require.NoError(t, err)

	store, closeFn, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &memstore.Store{}, store)
}
