package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/definitioncatalog"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

func TestCreateAndReadResourceDefinitionByFQNAndName(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	d := &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "Corning 96-well plate"}
	require.NoError(t, s.CreateResourceDefinition(ctx, d))
	require.NotEmpty(t, d.AccessionID)

	byFQN, err := s.ReadResourceDefinitionByFQN(ctx, "corning.plate_96")
	require.NoError(t, err)
	require.Equal(t, d.AccessionID, byFQN.AccessionID)

	byName, err := s.ReadResourceDefinitionByName(ctx, "Corning 96-well plate")
	require.NoError(t, err)
	require.Equal(t, d.AccessionID, byName.AccessionID)
}

func TestCreateResourceDefinitionDuplicateFQNConflicts(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.CreateResourceDefinition(ctx, &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "plate-a"}))

	err := s.CreateResourceDefinition(ctx, &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "plate-b"})
	require.Error(t, err)
	var conflict *workcellerrors.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestDeleteResourceDefinitionFreesFQNForReuse(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	d := &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "plate-a"}
	require.NoError(t, s.CreateResourceDefinition(ctx, d))
	require.NoError(t, s.DeleteResourceDefinition(ctx, d.AccessionID))

	require.NoError(t, s.CreateResourceDefinition(ctx, &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "plate-c"}))
}

func TestMachineDefinitionCRUD(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	d := &definitioncatalog.MachineDefinition{FQN: "hamilton.star", Name: "Hamilton STAR", HasDeck: true}
	require.NoError(t, s.CreateMachineDefinition(ctx, d))

	got, err := s.ReadMachineDefinitionByFQN(ctx, "hamilton.star")
	require.NoError(t, err)
	require.True(t, got.HasDeck)

	got.MachineCategory = "liquid_handler"
	require.NoError(t, s.UpdateMachineDefinition(ctx, got))

	list, err := s.ListMachineDefinitions(ctx, definitioncatalog.MachineDefinitionFilter{MachineCategory: "liquid_handler"}, definitioncatalog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteMachineDefinition(ctx, d.AccessionID))
	_, err = s.ReadMachineDefinitionByID(ctx, d.AccessionID)
	require.ErrorIs(t, err, workcellerrors.ErrNotFound)
}

func TestDeckDefinitionPositionUniquenessPerDeckType(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	d := &definitioncatalog.DeckDefinition{
		FQN: "hamilton.star_deck", Name: "STAR deck",
		Positions: []definitioncatalog.DeckPositionDefinition{{Name: "slot-1"}, {Name: "slot-1"}},
	}
	err := s.CreateDeckDefinition(ctx, d)
	require.Error(t, err, "duplicate position name within the same deck type must conflict")
}

func TestProtocolDefinitionUniquePerNameVersionSource(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	d1 := &definitioncatalog.FunctionProtocolDefinition{
		FQN: "protocols.transfer:v1", Name: "transfer", Version: "1.0.0",
		SourceRepositoryID: "repo-1", CommitHash: "abc123",
	}
	require.NoError(t, s.CreateProtocolDefinition(ctx, d1))

	d2 := &definitioncatalog.FunctionProtocolDefinition{
		FQN: "protocols.transfer:v1-copy", Name: "transfer", Version: "1.0.0",
		SourceRepositoryID: "repo-1", CommitHash: "abc123",
	}
	err := s.CreateProtocolDefinition(ctx, d2)
	require.Error(t, err)

	d3 := &definitioncatalog.FunctionProtocolDefinition{
		FQN: "protocols.transfer:v2", Name: "transfer", Version: "2.0.0",
		SourceRepositoryID: "repo-1", CommitHash: "def456",
	}
	require.NoError(t, s.CreateProtocolDefinition(ctx, d3))
}

func TestProtocolSourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	src := &definitioncatalog.ProtocolSource{Name: "lab-protocols", RepositoryURL: "https://example.invalid/lab-protocols.git"}
	require.NoError(t, s.CreateProtocolSource(ctx, src))

	got, err := s.ReadProtocolSourceByID(ctx, src.AccessionID)
	require.NoError(t, err)
	require.Equal(t, "lab-protocols", got.Name)

	got.DefaultBranch = "main"
	require.NoError(t, s.UpdateProtocolSource(ctx, got))
}

func TestListResourceDefinitionsPagination(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	for _, name := range []string{"a-plate", "b-plate", "c-plate"} {
		require.NoError(t, s.CreateResourceDefinition(ctx, &definitioncatalog.ResourceDefinition{FQN: "fqn." + name, Name: name}))
	}

	page, err := s.ListResourceDefinitions(ctx, definitioncatalog.ResourceDefinitionFilter{}, definitioncatalog.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "a-plate", page[0].Name)
}
