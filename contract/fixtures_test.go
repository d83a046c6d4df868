package contract

import (
	"strings"
	"testing"

	"datamarket/model"

	"github.com/stretchr/testify/require"
)

const (
	adminID = "x509::admin"
	aliceID = "x509::alice"
	bobID   = "x509::bob"
	carolID = "x509::carol"

	testContentHash    = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	testCollectionDate = "2024-03-01T00:00:00Z"
)

// fixture wires the contract to one shared in-memory ledger.
type fixture struct {
	t    *testing.T
	s    *DataMarketSmartContract
	stub *mockStub
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, s: &DataMarketSmartContract{}, stub: newMockStub()}
}

// bootstrap makes adminID the administrator.
func (f *fixture) bootstrap() {
	require.NoError(f.t, f.s.BootstrapLedger(asCaller(f.stub, adminID)))
	f.stub.advance(0)
}

func (f *fixture) registerResearcher(id, name string) {
	require.NoError(f.t, f.s.RegisterResearcher(asCaller(f.stub, id), name, "Test Institute", "PhD"))
	f.stub.advance(0)
}

func (f *fixture) registerDataset(ownerID, datasetID string, accessType model.AccessType, price string) {
	err := f.s.RegisterDataset(asCaller(f.stub, ownerID), datasetID,
		"Consumer trends "+datasetID, "retail", "EU", testCollectionDate,
		"online panel survey", testContentHash, string(accessType), price)
	require.NoError(f.t, err)
	f.stub.advance(0)
}

func (f *fixture) mint(toID string, amount string) {
	require.NoError(f.t, f.s.MintTokens(asCaller(f.stub, adminID), toID, amount))
	f.stub.advance(0)
}

func (f *fixture) balance(id string) int64 {
	balance, err := f.s.GetBalance(asCaller(f.stub, id), id)
	require.NoError(f.t, err)
	return balance
}

func longString(n int) string {
	return strings.Repeat("x", n)
}
