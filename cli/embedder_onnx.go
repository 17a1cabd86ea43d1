//go:build onnx

package cli

import (
	"github.com/kioku-ai/kioku/memory"
	"github.com/kioku-ai/kioku/memory/embedder/onnx"
)

func newONNXEmbedder(cfg *config) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     cfg.modelPath,
		TokenizerPath: cfg.tokenizerPath,
		LibraryPath:   cfg.onnxLibrary,
		Dimensions:    int(cfg.dimensions),
	})
}
