package reference

import "context"

// FileSource adapts LoadFile to the pipeline's Source contract.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) ([]Record, error) {
	return LoadFile(s.Path)
}
