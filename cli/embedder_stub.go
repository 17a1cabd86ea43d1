//go:build !onnx

package cli

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/kioku-ai/kioku/memory"
)

func newONNXEmbedder(cfg *config) (memory.Embedder, error) {
	return nil, goerr.New("binary built without onnx support, rebuild with -tags onnx",
		goerr.T(memory.TagInitFailure))
}
