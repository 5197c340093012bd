package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterFixtures() []*Conversation {
	return []*Conversation{
		{ID: "a", UserType: UserTypeVendor, Status: "new", FirstMessage: "I photograph weddings", ContactName: "Marco"},
		{ID: "b", UserType: UserTypePlanning, Status: "in progress", LastMessage: "our venue is booked", ContactEmail: "ana@example.com"},
		{ID: "c", UserType: UserTypePlanning, Status: "closed", FirstMessage: "just browsing"},
	}
}

func TestFilterByUserType(t *testing.T) {
	out := Filter(filterFixtures(), ListFilter{UserType: UserTypeVendor})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestFilterStatusMatchesLegacyValues(t *testing.T) {
	// "in_progress" must find rows stored with the old free-text spelling.
	out := Filter(filterFixtures(), ListFilter{Status: "in_progress"})
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)

	out = Filter(filterFixtures(), ListFilter{Status: "done"})
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)
}

func TestFilterQuerySearchesMessageAndContactFields(t *testing.T) {
	out := Filter(filterFixtures(), ListFilter{Query: "VENUE"})
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)

	out = Filter(filterFixtures(), ListFilter{Query: "marco"})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)

	out = Filter(filterFixtures(), ListFilter{Query: "nobody"})
	assert.Empty(t, out)
}

func TestFilterCombinesConditions(t *testing.T) {
	out := Filter(filterFixtures(), ListFilter{UserType: UserTypePlanning, Status: "done", Query: "browsing"})
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)

	// Same query with the wrong participant type matches nothing.
	out = Filter(filterFixtures(), ListFilter{UserType: UserTypeVendor, Status: "done", Query: "browsing"})
	assert.Empty(t, out)
}

func TestFilterEmptyPassesAll(t *testing.T) {
	out := Filter(filterFixtures(), ListFilter{})
	assert.Len(t, out, 3)
}
