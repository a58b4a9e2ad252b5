package core

import (
	"errors"
	"testing"
)

type countingBehavior struct {
	BaseBehavior
	received []any
	injected int
	crashes  int
	recovers int
}

func (b *countingBehavior) OnReceive(_ *Node, _ NodeID, payload any) {
	b.received = append(b.received, payload)
}
func (b *countingBehavior) OnInject(*Node, NodeID, any) { b.injected++ }
func (b *countingBehavior) OnCrash(*Node)               { b.crashes++ }
func (b *countingBehavior) OnRecover(*Node)             { b.recovers++ }

func lineGraph(t *testing.T, n int) (*Graph, []*countingBehavior) {
	t.Helper()
	g := NewGraph(Undirected)
	behaviors := make([]*countingBehavior, n)
	for i := 0; i < n; i++ {
		behaviors[i] = &countingBehavior{}
		if err := g.AddNode(NewNode(IntNodeID(i), behaviors[i])); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	for i := 0; i+1 < n; i++ {
		if err := g.AddLink(NewLink(IntNodeID(i), IntNodeID(i+1))); err != nil {
			t.Fatalf("AddLink: %v", err)
		}
	}
	return g, behaviors
}

func TestGraph_NeighborsAndLinks(t *testing.T) {
	g, _ := lineGraph(t, 3)

	nei := g.Neighbors(IntNodeID(1))
	if len(nei) != 2 || nei[0] != "0" || nei[1] != "2" {
		t.Fatalf("unexpected neighbors %v", nei)
	}
	if !g.HasLink("1", "0") {
		t.Fatalf("undirected link should be visible from both ends")
	}
	if g.Node("0").Degree() != 1 {
		t.Fatalf("expected degree 1, got %d", g.Node("0").Degree())
	}

	if !g.RemoveLink("1", "0") {
		t.Fatalf("expected link removal to succeed")
	}
	if g.HasLink("0", "1") || len(g.Neighbors("0")) != 0 {
		t.Fatalf("link should be gone")
	}
	if g.RemoveLink("0", "1") {
		t.Fatalf("second removal should report false")
	}

	if err := g.AddNode(NewNode("0", nil)); !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected ErrDuplicateNode, got %v", err)
	}
	if err := g.AddLink(NewLink("0", "9")); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if err := g.AddLink(NewLink("0", "0")); !errors.Is(err, ErrSelfLink) {
		t.Fatalf("expected ErrSelfLink, got %v", err)
	}
}

func TestGraph_DirectedAndMulti(t *testing.T) {
	g := NewGraph(DirectedMulti)
	for _, id := range []NodeID{"a", "b"} {
		if err := g.AddNode(NewNode(id, nil)); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	_ = g.AddLink(NewLink("a", "b"))
	_ = g.AddLink(&Link{A: "a", B: "b", Weight: 3})

	if len(g.Links()) != 2 {
		t.Fatalf("multigraph should keep parallel links, got %d", len(g.Links()))
	}
	if len(g.Neighbors("b")) != 0 {
		t.Fatalf("directed graph must not expose reverse neighbors")
	}
	if nei := g.Neighbors("a"); len(nei) != 1 || nei[0] != "b" {
		t.Fatalf("unexpected neighbors of a: %v", nei)
	}
}

func TestNode_InjectRequiresNeighbor(t *testing.T) {
	g, b := lineGraph(t, 3)

	if err := g.Node("0").Inject("2", "x"); !errors.Is(err, ErrNotNeighbor) {
		t.Fatalf("expected ErrNotNeighbor, got %v", err)
	}
	if err := g.Node("0").Send("1", "x"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if b[0].injected != 1 || len(g.Sending("0")) != 1 {
		t.Fatalf("expected one pending message, got %d", len(g.Sending("0")))
	}
	m := g.Sending("0")[0]
	if m.From != "0" || m.To != "1" || m.InitLife != DefaultLinkWeight || m.RemainLife != DefaultLinkWeight {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestNode_BroadcastWithout(t *testing.T) {
	g, _ := lineGraph(t, 3)
	mid := g.Node("1")

	if err := mid.Broadcast("x", "0", "nonexistent"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	sent := mid.Sending()
	if len(sent) != 1 || sent[0].To != "2" {
		t.Fatalf("expected a single message to 2, got %+v", sent)
	}

	if err := mid.BroadcastToFunc(func(to NodeID) any { return "to-" + string(to) }, []NodeID{"0"}); err != nil {
		t.Fatalf("BroadcastToFunc: %v", err)
	}
	if got := mid.Sending()[1].Payload; got != "to-0" {
		t.Fatalf("unexpected generated payload %v", got)
	}
}

func TestNode_ClashIsIdempotent(t *testing.T) {
	g, b := lineGraph(t, 2)
	n := g.Node("0")

	n.Clash()
	n.Clash()
	if b[0].crashes != 1 || !n.Clashed() {
		t.Fatalf("expected exactly one crash hook, got %d", b[0].crashes)
	}
	if n.State().Color != ClashedNodeColor {
		t.Fatalf("clash should push clashed state, got %v", n.State())
	}

	if err := n.Inject("1", "x"); err != nil || len(g.Messages()) != 0 {
		t.Fatalf("clashed node must not inject: err=%v msgs=%d", err, len(g.Messages()))
	}
	n.Receive("1", "x")
	if len(b[0].received) != 0 {
		t.Fatalf("clashed node must drop deliveries")
	}

	n.Recover()
	n.Recover()
	if b[0].recovers != 1 || n.Clashed() {
		t.Fatalf("expected exactly one recover hook, got %d", b[0].recovers)
	}
	if n.State().Color != NodeColor {
		t.Fatalf("recover should restore prior state, got %v", n.State())
	}
}

func TestMessage_ArriveAndProgress(t *testing.T) {
	m := NewMessage("x", "a", "b", 4)
	if m.Arrive() || m.Progress() != 0 {
		t.Fatalf("fresh message should not have arrived")
	}
	m.Update(0)
	if m.Progress() != 0.25 {
		t.Fatalf("expected progress 0.25, got %v", m.Progress())
	}
	for i := 0; i < 10; i++ {
		m.Update(i)
	}
	if !m.Arrive() || m.RemainLife != 0 || m.Progress() != 1 {
		t.Fatalf("life must floor at zero: %+v", m)
	}

	p := NewMessage("x", "a", "b", 2)
	p.Update(0)
	if got := p.Position(Vec2{0, 0}, Vec2{10, 0}); got != (Vec2{5, 0}) {
		t.Fatalf("expected midpoint, got %v", got)
	}

	wrapped := NewMessage(m, "b", "c", 1)
	if wrapped.Payload != "x" {
		t.Fatalf("message payloads must not nest, got %v", wrapped.Payload)
	}
}

func TestGraph_RemoveMessages(t *testing.T) {
	g, _ := lineGraph(t, 3)
	mid := g.Node("1")
	if err := mid.Flood("x"); err != nil {
		t.Fatalf("Flood: %v", err)
	}
	sent := mid.Sending()
	g.RemoveMessages("1", sent[:1])
	if len(g.Sending("1")) != 1 || g.InFlight() != 1 {
		t.Fatalf("expected one remaining message, got %d", g.InFlight())
	}
	g.RemoveMessages("1", sent[1:])
	if g.InFlight() != 0 || len(g.Messages()) != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestNode_NeighborsByID(t *testing.T) {
	g, _ := lineGraph(t, 3)
	mid := g.Node("1")
	got := mid.NeighborsByID()
	if len(got) != 2 || got["0"] != g.Node("0") || got["2"] != g.Node("2") {
		t.Fatalf("unexpected neighbors %v", got)
	}
	if len(NewNode("lonely", nil).NeighborsByID()) != 0 {
		t.Fatalf("detached node must have no neighbors")
	}
}
