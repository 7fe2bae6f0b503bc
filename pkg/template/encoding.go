package template

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// treeVersion is bumped whenever the binary projection changes shape.
const treeVersion = 1

type encodedTree struct {
	Version int       `msgpack:"v"`
	Doc     *Document `msgpack:"d"`
}

// Encode writes the compact binary projection of a parsed document. The
// precompile tool stores it next to template sources so components can
// skip parsing at load time.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("template: encode nil document")
	}
	return msgpack.Marshal(encodedTree{Version: treeVersion, Doc: doc})
}

// Decode reads a document written by Encode.
func Decode(data []byte) (*Document, error) {
	var tree encodedTree
	if err := msgpack.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("template: decode tree: %w", err)
	}
	if tree.Version != treeVersion {
		return nil, fmt.Errorf("template: unsupported tree version %d", tree.Version)
	}
	if tree.Doc == nil {
		return &Document{Children: []*Node{}}, nil
	}
	if tree.Doc.Children == nil {
		tree.Doc.Children = []*Node{}
	}
	return tree.Doc, nil
}
