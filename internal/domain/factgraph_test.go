package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, s *Schema, port, name string) *Fact {
	t.Helper()
	svc, err := s.New("Service", "")
	require.NoError(t, err)
	p, err := s.New("Port", port)
	require.NoError(t, err)
	n, err := s.New("Name", name)
	require.NoError(t, err)
	require.NoError(t, svc.AddChild("port", p))
	require.NoError(t, svc.AddChild("service_name", n))
	return svc
}

func TestAttachAssignsHandlesInPreOrder(t *testing.T) {
	s := DefaultSchema()
	g := NewFactGraph(s)

	target, err := s.New("Target", "")
	require.NoError(t, err)
	attached, err := g.Attach(nil, "target", target)
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, FactID(1), target.ID())
	assert.Equal(t, RootID, target.Parent())

	svc := newService(t, s, "21", "vsftpd")
	attached, err = g.Attach(target, "service", svc)
	require.NoError(t, err)
	require.Len(t, attached, 3)
	assert.Same(t, svc, attached[0])
	assert.Equal(t, []FactID{2, 3, 4}, []FactID{attached[0].ID(), attached[1].ID(), attached[2].ID()})
	assert.Equal(t, "port", g.SlotOf(attached[1]))
	assert.Same(t, svc, g.Parent(attached[1]))
	assert.Same(t, target, g.Parent(svc))
	assert.Nil(t, g.Parent(g.Root()))
	assert.Equal(t, 5, g.Len())
	assert.True(t, g.Owns(svc))
}

func TestAttachRejectsInvalidPlacement(t *testing.T) {
	s := DefaultSchema()
	g := NewFactGraph(s)
	target, err := s.New("Target", "")
	require.NoError(t, err)
	_, err = g.Attach(nil, "target", target)
	require.NoError(t, err)

	t.Run("already attached", func(t *testing.T) {
		_, err := g.Attach(nil, "target", target)
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("parent not in graph", func(t *testing.T) {
		_, err := g.Attach(NewBranch("Target"), "service", newService(t, s, "22", "ssh"))
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("wrong slot type", func(t *testing.T) {
		_, err := g.Attach(target, "shell", newService(t, s, "22", "ssh"))
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("singleton slot", func(t *testing.T) {
		status, err := s.New("Status", "UP")
		require.NoError(t, err)
		_, err = g.Attach(target, "status", status)
		require.NoError(t, err)

		again, err := s.New("Status", "DOWN")
		require.NoError(t, err)
		_, err = g.Attach(target, "status", again)
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("linked child", func(t *testing.T) {
		svc := newService(t, s, "80", "http")
		port := svc.Children("port")[0]
		_, err := g.Attach(target, "service", port)
		assert.ErrorIs(t, err, ErrContractViolation)
	})
}

func TestCheckBatch(t *testing.T) {
	s := DefaultSchema()
	g := NewFactGraph(s)
	target, err := s.New("Target", "")
	require.NoError(t, err)
	_, err = g.Attach(nil, "target", target)
	require.NoError(t, err)

	t.Run("parent added earlier in batch", func(t *testing.T) {
		shell, err := s.New("SocketShell", "")
		require.NoError(t, err)
		priv, err := s.New("Privilege", "ROOT")
		require.NoError(t, err)
		err = g.CheckBatch([]PendingAdd{
			{Parent: target, Slot: "shell", Fact: shell, Certainty: 1},
			{Parent: shell, Slot: "privilege", Fact: priv, Certainty: 1},
		})
		assert.NoError(t, err)
	})

	t.Run("singleton filled within batch", func(t *testing.T) {
		shell, err := s.New("SocketShell", "")
		require.NoError(t, err)
		p1, _ := s.New("Privilege", "ROOT")
		p2, _ := s.New("Privilege", "USER")
		err = g.CheckBatch([]PendingAdd{
			{Parent: target, Slot: "shell", Fact: shell},
			{Parent: shell, Slot: "privilege", Fact: p1},
			{Parent: shell, Slot: "privilege", Fact: p2},
		})
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("unknown parent", func(t *testing.T) {
		err := g.CheckBatch([]PendingAdd{{Parent: NewBranch("SocketShell"), Slot: "privilege", Fact: NewEnum("Privilege", "ROOT")}})
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("same fact twice", func(t *testing.T) {
		svc := newService(t, s, "21", "ftp")
		err := g.CheckBatch([]PendingAdd{
			{Parent: target, Slot: "service", Fact: svc, Recursive: true},
			{Parent: target, Slot: "service", Fact: svc, Recursive: true},
		})
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("non recursive add with children", func(t *testing.T) {
		err := g.CheckBatch([]PendingAdd{{Parent: target, Slot: "service", Fact: newService(t, s, "21", "ftp")}})
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("graph untouched", func(t *testing.T) {
		assert.Equal(t, 2, g.Len())
	})
}

func TestRender(t *testing.T) {
	s := DefaultSchema()
	g := NewFactGraph(s)

	tests := []struct {
		name string
		fact *Fact
		want string
	}{
		{"branch", NewBranch("Target"), ""},
		{"string leaf", NewExtends("Name", " vsftpd "), "(str) vsftpd"},
		{"int leaf", NewExtends("Port", "21"), "(int) 21"},
		{"enum", NewEnum("Privilege", "ROOT"), "ROOT"},
		{"empty custom", NewCustom("Version", "", nil), "-"},
		{"custom", NewCustom("Version", "2.3.4", nil), "2.3.4"},
		{"markup escaped", NewExtends("ExtraInfo", "<b>a/b\\c</b>"), "(str) &lt;b&gt;a&#47;b&#92;c&lt;&#47;b&gt;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Render(tt.fact))
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"  padded \n", "padded"},
		{"tab\there", "tabhere"},
		{"café", "caf"},
		{"two\nlines", "two\nlines"},
		{"bell\a", "bell"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "Sanitize(%q)", tt.in)
	}
}

func TestExportWalksPreOrder(t *testing.T) {
	s := DefaultSchema()
	g := NewFactGraph(s)
	target, err := s.New("Target", "")
	require.NoError(t, err)
	_, err = g.Attach(nil, "target", target)
	require.NoError(t, err)
	_, err = g.Attach(target, "service", newService(t, s, "21", "vsftpd"))
	require.NoError(t, err)

	records := g.Export()
	require.Len(t, records, 5)

	var types []string
	var depths []int
	for _, r := range records {
		types = append(types, r.Type)
		depths = append(depths, r.Depth)
	}
	assert.Equal(t, []string{"Root", "Target", "Service", "Port", "Name"}, types)
	assert.Equal(t, []int{0, 1, 2, 3, 3}, depths)
	assert.Equal(t, "service_name", records[4].Slot)
	assert.Equal(t, "(str) vsftpd", records[4].Rendered)
}
