package ipld

import (
	"github.com/ipld/go-ipld-prime"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
)

type Link = ipld.Link
type Block = block.Block
type Node = ipld.Node
