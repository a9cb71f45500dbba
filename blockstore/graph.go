package blockstore

import (
	"fmt"
	"os"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/lunfardo314/dagcore/ledger"
)

var (
	fontsizeAttribute  = graph.VertexAttribute("fontsize", "10")
	blockNodeAttribute = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "blues3"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "2"),
		graph.VertexAttribute("fillcolor", "1"),
	}
	finalizedNodeAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "bugn9"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "9"),
		graph.VertexAttribute("fillcolor", "5"),
		graph.VertexAttribute("shape", "box"),
	}
)

func graphNodeID(h ledger.Hash) string {
	return h.StringShort()
}

// MakeGraph builds graph of the whole DAG. Edges point from the block to its parents.
// Selected parent edges are bold, merge parent edges are dashed
func MakeGraph(store Iterable) (graph.Graph[string, string], error) {
	ret := graph.New(graph.StringHash, graph.Directed())

	blocks := make([]*ledger.Block, 0)
	err := store.ForEachBlock(func(block *ledger.Block) bool {
		blocks = append(blocks, block)
		return true
	})
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		attr := blockNodeAttribute
		if store.IsFinalized(b.Hash()) {
			attr = finalizedNodeAttributes
		}
		attr = append(attr[:len(attr):len(attr)],
			graph.VertexAttribute("xlabel", fmt.Sprintf("h=%d bs=%d", b.Height, b.BlueScore)))
		if err = ret.AddVertex(graphNodeID(b.Hash()), attr...); err != nil {
			return nil, err
		}
	}
	for _, b := range blocks {
		id := graphNodeID(b.Hash())
		if !b.SelectedParent.IsNil() {
			// parent may be absent from the store
			_ = ret.AddEdge(id, graphNodeID(b.SelectedParent), graph.EdgeAttribute("penwidth", "2"))
		}
		for _, mp := range b.MergeParents {
			_ = ret.AddEdge(id, graphNodeID(mp), graph.EdgeAttribute("style", "dashed"))
		}
	}
	return ret, nil
}

// SaveGraph writes DOT representation of the DAG to fname + ".gv"
func SaveGraph(store Iterable, fname string) error {
	gr, err := MakeGraph(store)
	if err != nil {
		return err
	}
	dotFile, err := os.Create(fname + ".gv")
	if err != nil {
		return err
	}
	defer func() { _ = dotFile.Close() }()

	return draw.DOT(gr, dotFile)
}
