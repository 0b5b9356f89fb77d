package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultContracts(t *testing.T) {
	c := DefaultContracts()

	details := c.Auction.Methods[MethodGetAuctionDetails]
	assert.Len(t, details.Outputs, 9)
	assert.Contains(t, c.DutchAuction.Methods, MethodGetCurrentPrice)
	assert.Contains(t, c.DutchAuction.Methods, MethodReservePrice)
	assert.Contains(t, c.DutchAuction.Methods, MethodDuration)
	assert.NotContains(t, c.Auction.Methods, MethodGetCurrentPrice)
	assert.Contains(t, c.Factory.Methods, MethodAuctionCount)
	assert.Contains(t, c.ERC721.Methods, MethodTokenURI)
}

func TestLoadContracts_ArtifactOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AuctionFactory.json")
	artifact := `{"contractName":"AuctionFactory","abi":` + factoryABIJSON + `}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o600))

	c, err := LoadContracts(ContractPaths{Factory: path})
	require.NoError(t, err)
	assert.Contains(t, c.Factory.Events, EventAuctionCreated)
}

func TestLoadContracts_OverrideMissingEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "factory.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	_, err := LoadContracts(ContractPaths{Factory: path})
	assert.Error(t, err)
}

func TestLoadContracts_MissingFile(t *testing.T) {
	_, err := LoadContracts(ContractPaths{Auction: "/nonexistent/auction.json"})
	assert.Error(t, err)
}
