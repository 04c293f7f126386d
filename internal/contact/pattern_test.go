package contact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestPatternSource_GuessesLeasingInbox(t *testing.T) {
	company := "Acme Property Management, LLC"
	f, err := NewPatternSource().Lookup(context.Background(), model.Building{
		IdentityKey:       "123-main-street",
		ManagementCompany: &company,
	})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "leasing@acmeproperty.com", f.Email)
}

func TestPatternSource_FallsBackToPropertyManager(t *testing.T) {
	manager := "Brightline Residential"
	f, err := NewPatternSource().Lookup(context.Background(), model.Building{PropertyManager: &manager})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "leasing@brightlineresidential.com", f.Email)
}

func TestPatternSource_NoCompanyNoGuess(t *testing.T) {
	f, err := NewPatternSource().Lookup(context.Background(), model.Building{IdentityKey: "123-main-street"})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestPatternSource_RejectsTooShortSlug(t *testing.T) {
	company := "A1 Co"
	f, err := NewPatternSource().Lookup(context.Background(), model.Building{ManagementCompany: &company})
	require.NoError(t, err)
	assert.Nil(t, f)
}
