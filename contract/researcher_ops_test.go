package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterResearcher(t *testing.T) {
	f := newFixture(t)

	err := f.s.RegisterResearcher(asCaller(f.stub, aliceID), "Alice Ames", "Uni Utrecht", "MSc Economics")
	require.NoError(t, err)

	researcher, err := f.s.GetResearcher(asCaller(f.stub, bobID), aliceID)
	require.NoError(t, err)
	assert.Equal(t, aliceID, researcher.ID)
	assert.Equal(t, "Alice Ames", researcher.Name)
	assert.Equal(t, "Uni Utrecht", researcher.Institution)
	assert.Equal(t, "MSc Economics", researcher.Credentials)
	assert.Equal(t, 0, researcher.DatasetsRegistered)
	assert.Equal(t, f.stub.txTime, researcher.RegisteredAt)
}

func TestRegisterResearcherDuplicateKeepsFirstRecord(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")

	err := f.s.RegisterResearcher(asCaller(f.stub, aliceID), "Alice Again", "Other Org", "")
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	researcher, err := f.s.GetResearcher(asCaller(f.stub, aliceID), aliceID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Ames", researcher.Name)
	assert.Equal(t, "Test Institute", researcher.Institution)
}

func TestRegisterResearcherValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		displayName string
		credentials string
	}{
		{"empty name", "", ""},
		{"name too long", longString(maxStringInputLength + 1), ""},
		{"credentials too long", "Alice", longString(maxTextInputLength + 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.s.RegisterResearcher(asCaller(f.stub, aliceID), tc.displayName, "Org", tc.credentials)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestGetResearcherUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.s.GetResearcher(asCaller(f.stub, aliceID), "x509::nobody")
	assert.ErrorIs(t, err, ErrUnknownResearcher)
}

func TestIsRegisteredResearcher(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")

	registered, err := f.s.IsRegisteredResearcher(asCaller(f.stub, bobID), aliceID)
	require.NoError(t, err)
	assert.True(t, registered)

	registered, err = f.s.IsRegisteredResearcher(asCaller(f.stub, bobID), bobID)
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestGetAllResearchers(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.registerResearcher(bobID, "Bob Burns")

	researchers, err := f.s.GetAllResearchers(asCaller(f.stub, carolID))
	require.NoError(t, err)
	assert.Len(t, researchers, 2)
}
