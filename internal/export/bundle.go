package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/morozRed/classlens/internal/codec"
	"github.com/morozRed/classlens/internal/token"
)

// Bundle is a read view over a written bundle.
type Bundle struct {
	Manifest Manifest
	files    map[string]*zip.File
}

// Open reads a bundle image.
func Open(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	zr.RegisterDecompressor(MethodZstd, zstd.ZipDecompressor())

	b := &Bundle{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		b.files[f.Name] = f
	}
	raw, err := b.read(ManifestName)
	if err != nil {
		return nil, err
	}
	if err := codec.Unmarshal(raw, &b.Manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return b, nil
}

// Artifact returns the source and tokens of an outer class by internal
// name.
func (b *Bundle) Artifact(className string) (token.Artifact, error) {
	source, err := b.read(className + SourceSuffix)
	if err != nil {
		return token.Artifact{}, err
	}
	raw, err := b.read(className + TokensSuffix)
	if err != nil {
		return token.Artifact{}, err
	}
	var tokens []token.Token
	if err := codec.Unmarshal(raw, &tokens); err != nil {
		return token.Artifact{}, fmt.Errorf("failed to decode tokens of %s: %w", className, err)
	}
	return token.Artifact{
		Entry:  className + ".class",
		Source: string(source),
		Tokens: tokens,
		Kind:   token.Source,
	}, nil
}

func (b *Bundle) read(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("bundle has no entry %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}
